package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD sizes
const (
	// SessionKeyLength is the size of each key of a SessionPair
	SessionKeyLength = chacha20poly1305.KeySize

	// NonceLength is the XChaCha20-Poly1305 nonce size
	NonceLength = chacha20poly1305.NonceSizeX

	// Overhead is the size of the authentication tag appended to every ciphertext
	Overhead = chacha20poly1305.Overhead
)

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// SessionPair holds the directional keys shared with one peer. Tx encrypts outgoing messages,
// Rx decrypts incoming ones; the peer's pair is the mirror image.
type SessionPair struct {
	Rx [SessionKeyLength]byte
	Tx [SessionKeyLength]byte
}

// Reversed returns the pair as seen by the other side.
func (p SessionPair) Reversed() SessionPair {
	return SessionPair{Rx: p.Tx, Tx: p.Rx}
}

// AEAD is an authenticated encryption primitive keyed by a SessionPair.
//
// Callers own nonce uniqueness: a nonce must never be used twice with the same Tx key for
// different plaintexts.
type AEAD interface {
	Encrypt(plaintext, aad, nonce []byte, session SessionPair) ([]byte, error)
	Decrypt(ciphertext, aad, nonce []byte, session SessionPair) ([]byte, error)
}

// XChaCha20Poly1305 implements AEAD with XChaCha20-Poly1305 (IETF).
type XChaCha20Poly1305 struct{}

// Default is the AEAD used by the node.
var Default AEAD = XChaCha20Poly1305{}

// Encrypt seals plaintext with session.Tx. The result is ciphertext followed by a 16 byte tag.
func (XChaCha20Poly1305) Encrypt(plaintext, aad, nonce []byte, session SessionPair) ([]byte, error) {
	if len(nonce) != NonceLength {
		return nil, fmt.Errorf("%w: nonce has %d bytes, want %d", ErrEncryptionFailed, len(nonce), NonceLength)
	}
	aead, err := chacha20poly1305.NewX(session.Tx[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return aead.Seal(make([]byte, 0, len(plaintext)+Overhead), nonce, plaintext, aad), nil
}

// Decrypt opens ciphertext with session.Rx. Any authentication failure yields ErrDecryptionFailed.
func (XChaCha20Poly1305) Decrypt(ciphertext, aad, nonce []byte, session SessionPair) ([]byte, error) {
	if len(nonce) != NonceLength {
		return nil, fmt.Errorf("%w: nonce has %d bytes, want %d", ErrDecryptionFailed, len(nonce), NonceLength)
	}
	if len(ciphertext) < Overhead {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrDecryptionFailed)
	}
	aead, err := chacha20poly1305.NewX(session.Rx[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
