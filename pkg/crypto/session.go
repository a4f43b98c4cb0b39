package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

// KeyAgreementKeyLength is the size of X25519 keys
const KeyAgreementKeyLength = curve25519.PointSize

// KeyAgreementPublicKey is an X25519 public key.
type KeyAgreementPublicKey [KeyAgreementKeyLength]byte

// KeyAgreementSecretKey is an X25519 secret scalar.
type KeyAgreementSecretKey [KeyAgreementKeyLength]byte

// KeyAgreementKeyPair is an X25519 key pair.
type KeyAgreementKeyPair struct {
	Public KeyAgreementPublicKey
	Secret KeyAgreementSecretKey
}

// GenerateKeyAgreementKeyPair generates a random X25519 key pair.
func GenerateKeyAgreementKeyPair() (KeyAgreementKeyPair, error) {
	var kp KeyAgreementKeyPair
	if _, err := rand.Read(kp.Secret[:]); err != nil {
		return kp, err
	}
	return KeyAgreementKeyPairFromSecret(kp.Secret)
}

// KeyAgreementKeyPairFromSecret derives the public key for secret.
func KeyAgreementKeyPairFromSecret(secret KeyAgreementSecretKey) (KeyAgreementKeyPair, error) {
	kp := KeyAgreementKeyPair{Secret: secret}
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return kp, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// GenerateSessionKeyPair derives the session keys shared between own and a peer's public key.
// It follows libsodium's crypto_kx construction:
//
//	rx || tx = BLAKE2b-512(X25519(secret, peer) || client_pk || server_pk)
//
// The side with the lexicographically smaller public key acts as client. Both sides obtain
// mirrored pairs, so one side's Tx equals the other side's Rx.
func GenerateSessionKeyPair(own KeyAgreementKeyPair, peer KeyAgreementPublicKey) (SessionPair, error) {
	var pair SessionPair

	shared, err := curve25519.X25519(own.Secret[:], peer[:])
	if err != nil {
		return pair, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	client := bytes.Compare(own.Public[:], peer[:]) < 0

	h, err := blake2b.New512(nil)
	if err != nil {
		return pair, err
	}
	h.Write(shared)
	if client {
		h.Write(own.Public[:])
		h.Write(peer[:])
	} else {
		h.Write(peer[:])
		h.Write(own.Public[:])
	}
	keys := h.Sum(nil)

	if client {
		copy(pair.Rx[:], keys[:SessionKeyLength])
		copy(pair.Tx[:], keys[SessionKeyLength:])
	} else {
		copy(pair.Tx[:], keys[:SessionKeyLength])
		copy(pair.Rx[:], keys[SessionKeyLength:])
	}
	return pair, nil
}
