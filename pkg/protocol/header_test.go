package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() PublicHeader {
	var nonce Nonce
	for i := range nonce {
		nonce[i] = byte(i)
	}
	return PublicHeader{
		HopCount:    3,
		Armed:       true,
		NetworkID:   -2,
		Nonce:       nonce,
		Recipient:   testKey(0x11),
		Sender:      testKey(0x22),
		ProofOfWork: 6518542,
	}
}

func TestPublicHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		header PublicHeader
	}{
		{name: "armed with recipient", header: testHeader()},
		{name: "unarmed without recipient", header: func() PublicHeader {
			h := testHeader()
			h.Armed = false
			h.Recipient = ZeroPublicKey
			h.HopCount = 0
			return h
		}()},
		{name: "max hop count", header: func() PublicHeader {
			h := testHeader()
			h.HopCount = MaxHopCount
			return h
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.header.AppendTo(nil, true)
			require.Len(t, encoded, PublicHeaderLength)

			decoded, err := DecodePublicHeader(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.header, decoded)
			assert.Equal(t, tt.header.HasRecipient(), decoded.HasRecipient())
		})
	}
}

func TestPublicHeaderLayout(t *testing.T) {
	h := testHeader()
	encoded := h.AppendTo(nil, true)

	assert.Equal(t, byte(3), encoded[0], "hop count")
	assert.Equal(t, byte(1), encoded[1], "armed flag")
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFE}, encoded[2:6], "network id")
	assert.Equal(t, h.Nonce[:], encoded[6:30])
	assert.Equal(t, h.Recipient[:], encoded[30:62])
	assert.Equal(t, h.Sender[:], encoded[62:94])
	assert.Equal(t, []byte{0x00, 0x63, 0x77, 0x0E}, encoded[94:98], "proof of work")
}

func TestAuthTagOmitsHopCount(t *testing.T) {
	h := testHeader()
	tag := h.AuthTag()
	require.Len(t, tag, AuthTagLength)
	assert.Equal(t, 97, AuthTagLength)
	assert.True(t, bytes.Equal(h.AppendTo(nil, true)[1:], tag))

	h.HopCount = 6
	assert.Equal(t, tag, h.AuthTag(), "hop count must not be authenticated")
}

func TestDecodePublicHeaderErrors(t *testing.T) {
	valid := testHeader().AppendTo(nil, true)

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodePublicHeader(valid[:PublicHeaderLength-1])
		assert.ErrorIs(t, err, ErrTruncated)
		assert.ErrorIs(t, err, ErrInvalidMessageFormat)
	})

	t.Run("hop count above seven", func(t *testing.T) {
		b := bytes.Clone(valid)
		b[0] = 8
		_, err := DecodePublicHeader(b)
		assert.ErrorIs(t, err, ErrInvalidHopCount)
	})

}

func TestDecodeArmedFlag(t *testing.T) {
	for _, flag := range []byte{0, 1, 2, 0xFF} {
		b := testHeader().AppendTo(nil, true)
		b[1] = flag
		h, err := DecodePublicHeader(b)
		require.NoError(t, err)
		assert.Equal(t, flag != 0, h.Armed, "flag %d", flag)

		// re-encoding normalizes the flag, so the auth tag is the one of a 0/1 flag
		assert.Equal(t, b2i(flag != 0), h.AppendTo(nil, true)[1])
	}
}

func b2i(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func TestPrivateHeader(t *testing.T) {
	h := PrivateHeader{Type: TypeHello, ArmedLength: 0x0150}
	encoded := h.AppendTo(nil)
	assert.Equal(t, []byte{4, 0x01, 0x50}, encoded)

	decoded, err := DecodePrivateHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, h, decoded)

	_, err = DecodePrivateHeader([]byte{9, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodePrivateHeader([]byte{1, 0})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestPeekArmedLengthKeepsCursor(t *testing.T) {
	r := newReader([]byte{2, 0, 16, 0xAA})
	n, err := peekArmedLength(r)
	require.NoError(t, err)
	assert.Equal(t, uint16(16), n)
	assert.Equal(t, 4, r.remaining())
}
