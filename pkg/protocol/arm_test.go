package protocol

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/overlay-node/pkg/crypto"
)

// testSessions returns the session pairs of two peers; alice.Tx equals bob.Rx.
func testSessions(t *testing.T) (alice, bob crypto.SessionPair) {
	t.Helper()
	a, err := crypto.GenerateKeyAgreementKeyPair()
	require.NoError(t, err)
	b, err := crypto.GenerateKeyAgreementKeyPair()
	require.NoError(t, err)

	alice, err = crypto.GenerateSessionKeyPair(a, b.Public)
	require.NoError(t, err)
	bob, err = crypto.GenerateSessionKeyPair(b, a.Public)
	require.NoError(t, err)
	return alice, bob
}

func TestArmDisarmRoundTrip(t *testing.T) {
	alice, bob := testSessions(t)

	for name, m := range testMessages(t) {
		t.Run(name, func(t *testing.T) {
			armed, err := Arm(crypto.Default, m, alice)
			require.NoError(t, err)
			assert.True(t, armed.Armed)
			assert.Equal(t, m.Header().Nonce, armed.Nonce)

			frame := Encode(armed)
			partial, err := Decode(frame)
			require.NoError(t, err)
			received, ok := partial.(ArmedMessage)
			require.True(t, ok, "expected ArmedMessage, got %T", partial)

			full, err := received.Disarm(crypto.Default, bob)
			require.NoError(t, err)
			assert.Equal(t, m, full)
			assert.False(t, full.Header().Armed)
		})
	}
}

func TestArmHidesBody(t *testing.T) {
	alice, _ := testSessions(t)
	payload := []byte("a secret application payload")
	m, err := NewApplicationMessage(1, testKey(1), testKey(2), 0, payload)
	require.NoError(t, err)

	armed, err := Arm(crypto.Default, m, alice)
	require.NoError(t, err)
	assert.Len(t, armed.Bytes, PrivateHeaderLength+len(payload)+2*crypto.Overhead)
	assert.False(t, bytes.Contains(armed.Bytes, payload))
}

func TestDisarmDetectsTampering(t *testing.T) {
	alice, bob := testSessions(t)
	sender, secret := testIdentity(t)
	m, err := NewHelloMessage(1, testKey(0x42), sender, 42, 1000, 5000, secret, nil)
	require.NoError(t, err)

	armed, err := Arm(crypto.Default, m, alice)
	require.NoError(t, err)
	frame := Encode(armed)

	for i := range frame {
		if i == MagicNumberLength || i == MagicNumberLength+1 {
			// hop count is unauthenticated; the armed flag changes the read state
			continue
		}
		tampered := bytes.Clone(frame)
		tampered[i] ^= 0x01

		partial, err := Decode(tampered)
		if i < MagicNumberLength {
			assert.ErrorIs(t, err, ErrInvalidMagic, "byte %d", i)
			continue
		}
		require.NoError(t, err, "byte %d", i)

		_, err = partial.(ArmedMessage).Disarm(crypto.Default, bob)
		assert.ErrorIs(t, err, ErrIntegrity, "byte %d", i)
	}
}

func TestDisarmToleratesHopCountChange(t *testing.T) {
	alice, bob := testSessions(t)
	m := NewDiscoveryMessage(1, testKey(1), testKey(2), 0, 1000, 0)

	armed, err := Arm(crypto.Default, m, alice)
	require.NoError(t, err)

	frame := Encode(armed)
	require.NoError(t, IncrementHopCountInPlace(frame))

	full, err := DecodeFull(frame, crypto.Default, bob)
	require.NoError(t, err)
	assert.Equal(t, HopCount(1), full.Header().HopCount)

	forwarded, err := armed.IncrementHopCount()
	require.NoError(t, err)
	full, err = forwarded.Disarm(crypto.Default, bob)
	require.NoError(t, err)
	assert.Equal(t, HopCount(1), full.Header().HopCount)
}

func TestDisarmWithDifferentNonceFails(t *testing.T) {
	alice, bob := testSessions(t)
	m, err := NewApplicationMessage(1, testKey(1), testKey(2), 0, []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	armed, err := Arm(crypto.Default, m, alice)
	require.NoError(t, err)

	other := armed
	other.Nonce = RandomNonce()
	_, err = other.Disarm(crypto.Default, bob)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.False(t, errors.Is(err, ErrInvalidMessageFormat))
}

func TestDisarmWithWrongKeysFails(t *testing.T) {
	alice, _ := testSessions(t)
	_, eve := testSessions(t)
	m := NewPingMessage(1, testKey(1), testKey(2), 0, 1)

	armed, err := Arm(crypto.Default, m, alice)
	require.NoError(t, err)

	_, err = armed.Disarm(crypto.Default, eve)
	assert.ErrorIs(t, err, ErrIntegrity)

	// own session decrypts with Rx, which is not the key used to encrypt
	_, err = armed.Disarm(crypto.Default, alice)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestArmWithZeroArmedLength(t *testing.T) {
	alice, bob := testSessions(t)
	h := testHeader()
	h.Armed = false

	payload := PrivateHeader{Type: TypeApplication, ArmedLength: 0}.AppendTo(nil)
	payload = append(payload, 0x09, 0x08)

	armed, err := UnarmedMessage{PublicHeader: h, Bytes: payload}.Arm(crypto.Default, alice)
	require.NoError(t, err)

	// only the private header is encrypted, the remainder stays in clear
	require.Len(t, armed.Bytes, PrivateHeaderLength+crypto.Overhead+2)
	assert.Equal(t, []byte{0x09, 0x08}, armed.Bytes[PrivateHeaderLength+crypto.Overhead:])

	full, err := armed.Disarm(crypto.Default, bob)
	require.NoError(t, err)
	app := full.(ApplicationMessage)
	assert.Equal(t, []byte{0x09, 0x08}, app.Payload)
}

func TestDisarmBytesReproducesPlaintext(t *testing.T) {
	alice, bob := testSessions(t)
	m := NewAcknowledgementMessage(1, testKey(1), testKey(2), 0, 55, netip.MustParseAddrPort("192.0.2.1:9"))
	unarmed := Unarmed(m)

	armed, err := unarmed.Arm(crypto.Default, alice)
	require.NoError(t, err)

	plain, err := armed.DisarmBytes(crypto.Default, bob)
	require.NoError(t, err)
	assert.Equal(t, unarmed.Bytes, plain.Bytes)
	assert.Equal(t, unarmed.PublicHeader, plain.PublicHeader)
}

func TestDisarmFormatErrorAfterDecryption(t *testing.T) {
	alice, bob := testSessions(t)
	h := testHeader()
	h.Armed = false

	// a hello body that is too short to parse
	payload := PrivateHeader{Type: TypeHello, ArmedLength: 4}.AppendTo(nil)
	payload = append(payload, 1, 2, 3, 4)

	armed, err := UnarmedMessage{PublicHeader: h, Bytes: payload}.Arm(crypto.Default, alice)
	require.NoError(t, err)

	_, err = armed.Disarm(crypto.Default, bob)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.False(t, errors.Is(err, ErrIntegrity))
}

func TestDisarmTruncated(t *testing.T) {
	_, bob := testSessions(t)
	h := testHeader()

	_, err := ArmedMessage{PublicHeader: h, Bytes: make([]byte, 10)}.Disarm(crypto.Default, bob)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.False(t, errors.Is(err, ErrIntegrity))
}

func TestArmRejectsShortBody(t *testing.T) {
	alice, _ := testSessions(t)
	payload := PrivateHeader{Type: TypeDiscovery, ArmedLength: DiscoveryLength}.AppendTo(nil)
	payload = append(payload, make([]byte, 4)...)

	_, err := UnarmedMessage{PublicHeader: testHeader(), Bytes: payload}.Arm(crypto.Default, alice)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestArmRejectsOverlongBody(t *testing.T) {
	alice, _ := testSessions(t)

	tests := []struct {
		name    string
		m       FullReadMessage
		wantErr bool
	}{
		{name: "payload at limit", m: ApplicationMessage{PublicHeader: testHeader(), Payload: make([]byte, MaxApplicationPayloadLength)}},
		{name: "payload above limit", m: ApplicationMessage{PublicHeader: testHeader(), Payload: bytes.Repeat([]byte{'S'}, 70000)}, wantErr: true},
		{name: "hello with too many addresses", m: HelloMessage{PublicHeader: testHeader(), PrivateAddresses: make([]netip.AddrPort, 4000)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			armed, err := Arm(crypto.Default, tt.m, alice)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessageFormat)
				assert.Empty(t, armed.Bytes)
				return
			}
			require.NoError(t, err)
			assert.False(t, bytes.Contains(armed.Bytes, make([]byte, 64)))
		})
	}
}
