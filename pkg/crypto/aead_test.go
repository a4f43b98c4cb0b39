package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T) SessionPair {
	t.Helper()
	var s SessionPair
	_, err := rand.Read(s.Rx[:])
	require.NoError(t, err)
	_, err = rand.Read(s.Tx[:])
	require.NoError(t, err)
	return s
}

func testNonce(t *testing.T) []byte {
	t.Helper()
	n := make([]byte, NonceLength)
	_, err := rand.Read(n)
	require.NoError(t, err)
	return n
}

func TestXChaCha20Poly1305RoundTrip(t *testing.T) {
	session := testSession(t)
	nonce := testNonce(t)

	tests := []struct {
		name      string
		plaintext []byte
		aad       []byte
	}{
		{"empty", []byte{}, nil},
		{"private header", []byte{4, 0, 16}, bytes.Repeat([]byte{0xAB}, 97)},
		{"body without aad", bytes.Repeat([]byte("x"), 1000), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := Default.Encrypt(tt.plaintext, tt.aad, nonce, session)
			require.NoError(t, err)
			assert.Len(t, ciphertext, len(tt.plaintext)+Overhead)

			plaintext, err := Default.Decrypt(ciphertext, tt.aad, nonce, session.Reversed())
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.plaintext, plaintext))
		})
	}
}

func TestXChaCha20Poly1305Failures(t *testing.T) {
	session := testSession(t)
	nonce := testNonce(t)
	aad := []byte("header")

	ciphertext, err := Default.Encrypt([]byte("payload"), aad, nonce, session)
	require.NoError(t, err)

	t.Run("modified ciphertext", func(t *testing.T) {
		bad := bytes.Clone(ciphertext)
		bad[0] ^= 1
		_, err := Default.Decrypt(bad, aad, nonce, session.Reversed())
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("modified aad", func(t *testing.T) {
		_, err := Default.Decrypt(ciphertext, []byte("headeR"), nonce, session.Reversed())
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("other nonce", func(t *testing.T) {
		_, err := Default.Decrypt(ciphertext, aad, testNonce(t), session.Reversed())
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("wrong direction", func(t *testing.T) {
		_, err := Default.Decrypt(ciphertext, aad, nonce, session)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("short ciphertext", func(t *testing.T) {
		_, err := Default.Decrypt(ciphertext[:Overhead-1], aad, nonce, session.Reversed())
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("bad nonce length", func(t *testing.T) {
		_, err := Default.Encrypt([]byte("x"), nil, nonce[:12], session)
		assert.ErrorIs(t, err, ErrEncryptionFailed)
		_, err = Default.Decrypt(ciphertext, aad, nonce[:12], session.Reversed())
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})
}

func TestXChaCha20Poly1305NonceChangesCiphertext(t *testing.T) {
	session := testSession(t)
	a, err := Default.Encrypt([]byte("same"), nil, testNonce(t), session)
	require.NoError(t, err)
	b, err := Default.Encrypt([]byte("same"), nil, testNonce(t), session)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b))
}
