package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"sync"
)

// Protocol constants
const (
	// Magic number that prefixes every frame (22527 * 22527)
	MagicNumber int32 = 22527 * 22527

	// MagicNumberLength is the size of the magic number prefix
	MagicNumberLength = 4

	// NonceLength is the size of a message nonce
	NonceLength = 24

	// PublicKeyLength is the size of an identity public key
	PublicKeyLength = 32

	// MaxHopCount is the largest hop count a message can carry
	MaxHopCount HopCount = 7
)

// ===== HOP COUNT =====

// HopCount counts how often a message has been forwarded. Valid values are 0..7.
type HopCount uint8

// NewHopCount returns the hop count for v or ErrHopCountRange.
func NewHopCount(v int) (HopCount, error) {
	if v < 0 || v > int(MaxHopCount) {
		return 0, fmt.Errorf("%w: %d", ErrHopCountRange, v)
	}
	return HopCount(v), nil
}

// MustHopCount is like NewHopCount but panics on invalid input.
func MustHopCount(v int) HopCount {
	h, err := NewHopCount(v)
	if err != nil {
		panic(err)
	}
	return h
}

// Increment returns the next hop count. It fails with ErrHopCountOverflow at MaxHopCount.
func (h HopCount) Increment() (HopCount, error) {
	if h >= MaxHopCount {
		return h, ErrHopCountOverflow
	}
	return h + 1, nil
}

// ===== NONCE =====

// Nonce identifies a message and is used as AEAD nonce when the message is armed.
// A nonce must never be reused for two different plaintexts under the same session key.
type Nonce [NonceLength]byte

// NewNonce copies b into a Nonce.
func NewNonce(b []byte) (Nonce, error) {
	var n Nonce
	if len(b) != NonceLength {
		return n, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidNonce, len(b), NonceLength)
	}
	copy(n[:], b)
	return n, nil
}

// RandomNonce returns a nonce read from crypto/rand.
func RandomNonce() Nonce {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		// crypto/rand only fails if the OS entropy source is broken
		panic(fmt.Sprintf("protocol: reading random nonce: %v", err))
	}
	return n
}

func (n Nonce) String() string {
	return hex.EncodeToString(n[:])
}

// NonceGenerator produces nonces for new messages.
type NonceGenerator interface {
	Next() Nonce
}

// SecureNonces generates nonces from crypto/rand. It is the default generator.
type SecureNonces struct{}

// Next returns a fresh random nonce.
func (SecureNonces) Next() Nonce {
	return RandomNonce()
}

// PseudorandomNonces generates nonces from a seeded ChaCha8 stream. It is intended for tests and
// benchmarks only and must be selected explicitly.
type PseudorandomNonces struct {
	mu  sync.Mutex
	rng *mrand.ChaCha8
}

// NewPseudorandomNonces returns a deterministic generator for the given seed.
func NewPseudorandomNonces(seed [32]byte) *PseudorandomNonces {
	return &PseudorandomNonces{rng: mrand.NewChaCha8(seed)}
}

// Next returns the next nonce of the stream.
func (p *PseudorandomNonces) Next() Nonce {
	var n Nonce
	p.mu.Lock()
	_, _ = p.rng.Read(n[:])
	p.mu.Unlock()
	return n
}

// DefaultNonces is used by the convenience constructors.
var DefaultNonces NonceGenerator = SecureNonces{}

// ===== PUBLIC KEY =====

// PublicKey is the 32 byte identity public key of a node. It doubles as the node's overlay address.
// The zero value is reserved and encodes "no recipient" on the wire.
type PublicKey [PublicKeyLength]byte

// ZeroPublicKey is the "no recipient" sentinel.
var ZeroPublicKey PublicKey

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != PublicKeyLength {
		return k, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPublicKey, len(b), PublicKeyLength)
	}
	copy(k[:], b)
	return k, nil
}

// ParsePublicKey parses a hex encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return PublicKeyFromBytes(b)
}

// IsZero reports whether k is the sentinel key.
func (k PublicKey) IsZero() bool {
	return k == ZeroPublicKey
}

// Bytes returns a copy of the key bytes.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeyLength)
	copy(b, k[:])
	return b
}

func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ===== PROOF OF WORK =====

// ProofOfWork is the sender's proof of work. Its validity is checked outside the codec.
type ProofOfWork int32

// ===== MESSAGE TYPES =====

// MessageType identifies the body layout that follows the private header.
type MessageType uint8

// Message types
const (
	TypeAcknowledgement MessageType = 0
	TypeApplication     MessageType = 1
	TypeDiscovery       MessageType = 2
	TypeUnite           MessageType = 3
	TypeHello           MessageType = 4
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t <= TypeHello
}

func (t MessageType) String() string {
	switch t {
	case TypeAcknowledgement:
		return "acknowledgement"
	case TypeApplication:
		return "application"
	case TypeDiscovery:
		return "discovery"
	case TypeUnite:
		return "unite"
	case TypeHello:
		return "hello"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}
