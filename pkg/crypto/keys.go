package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// Identity key sizes
const (
	IdentityPublicKeyLength = ed25519.PublicKeySize
	IdentitySecretKeyLength = ed25519.PrivateKeySize
	SignatureLength         = ed25519.SignatureSize
)

// GenerateIdentityKeyPair generates a new Ed25519 identity key pair
func GenerateIdentityKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Sign signs message with an Ed25519 secret key
func Sign(message []byte, secretKey ed25519.PrivateKey) ([]byte, error) {
	if len(secretKey) != IdentitySecretKeyLength {
		return nil, ErrInvalidKey
	}
	return ed25519.Sign(secretKey, message), nil
}

// VerifySignature verifies an Ed25519 signature over message
func VerifySignature(signature, message, publicKey []byte) bool {
	if len(publicKey) != IdentityPublicKeyLength || len(signature) != SignatureLength {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// ConvertIdentityPublicKey maps an Ed25519 public key to its X25519 (Montgomery) form
func ConvertIdentityPublicKey(publicKey []byte) (KeyAgreementPublicKey, error) {
	var out KeyAgreementPublicKey
	if len(publicKey) != IdentityPublicKeyLength {
		return out, ErrInvalidKey
	}
	p, err := new(edwards25519.Point).SetBytes(publicKey)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	copy(out[:], p.BytesMontgomery())
	return out, nil
}

// ConvertIdentitySecretKey maps an Ed25519 secret key to the matching X25519 scalar
func ConvertIdentitySecretKey(secretKey ed25519.PrivateKey) (KeyAgreementSecretKey, error) {
	var out KeyAgreementSecretKey
	if len(secretKey) != IdentitySecretKeyLength {
		return out, ErrInvalidKey
	}
	h := sha512.Sum512(secretKey.Seed())
	copy(out[:], h[:KeyAgreementKeyLength])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out, nil
}

// ConvertIdentityKeyPair derives the X25519 key pair belonging to an Ed25519 secret key
func ConvertIdentityKeyPair(secretKey ed25519.PrivateKey) (KeyAgreementKeyPair, error) {
	secret, err := ConvertIdentitySecretKey(secretKey)
	if err != nil {
		return KeyAgreementKeyPair{}, err
	}
	return KeyAgreementKeyPairFromSecret(secret)
}
