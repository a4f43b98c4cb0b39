package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ZentaChain/overlay-node/pkg/crypto"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

var (
	ErrInvalidDifficulty   = errors.New("invalid proof of work difficulty")
	ErrProofOfWorkNotFound = errors.New("no proof of work found")
	ErrInvalidIdentity     = errors.New("invalid identity")
)

// Identity is the long-term key pair of a node plus the proof of work for its public key.
// The public key is the node's overlay address.
type Identity struct {
	Address     protocol.PublicKey
	SecretKey   ed25519.PrivateKey
	ProofOfWork protocol.ProofOfWork

	agreement crypto.KeyAgreementKeyPair
}

// Generate creates a new identity whose proof of work meets difficulty.
func Generate(difficulty int) (*Identity, error) {
	_, sec, err := crypto.GenerateIdentityKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return FromSecretKey(sec, difficulty)
}

// FromSecretKey builds an identity for an existing secret key and computes its proof of work.
func FromSecretKey(sec ed25519.PrivateKey, difficulty int) (*Identity, error) {
	if len(sec) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: secret key has %d bytes", ErrInvalidIdentity, len(sec))
	}
	address, err := protocol.PublicKeyFromBytes(sec.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	pow, err := ComputeProofOfWork(address, difficulty)
	if err != nil {
		return nil, err
	}
	return New(sec, pow)
}

// New assembles an identity from a secret key and a previously computed proof of work.
func New(sec ed25519.PrivateKey, pow protocol.ProofOfWork) (*Identity, error) {
	if len(sec) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: secret key has %d bytes", ErrInvalidIdentity, len(sec))
	}
	address, err := protocol.PublicKeyFromBytes(sec.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	agreement, err := crypto.ConvertIdentityKeyPair(sec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return &Identity{
		Address:     address,
		SecretKey:   sec,
		ProofOfWork: pow,
		agreement:   agreement,
	}, nil
}

// IsValid reports whether the proof of work meets difficulty.
func (id *Identity) IsValid(difficulty int) bool {
	return ValidProofOfWork(id.Address, id.ProofOfWork, difficulty)
}

// KeyAgreementKeyPair returns the X25519 key pair derived from the identity key.
func (id *Identity) KeyAgreementKeyPair() crypto.KeyAgreementKeyPair {
	return id.agreement
}

// SessionWith derives the session keys shared with peer.
func (id *Identity) SessionWith(peerAddress protocol.PublicKey) (crypto.SessionPair, error) {
	peerKey, err := crypto.ConvertIdentityPublicKey(peerAddress[:])
	if err != nil {
		return crypto.SessionPair{}, err
	}
	return crypto.GenerateSessionKeyPair(id.agreement, peerKey)
}

// PeerID returns the libp2p peer ID of the identity key, used as a short display form.
func (id *Identity) PeerID() (peer.ID, error) {
	return PeerID(id.Address)
}

// PeerID returns the libp2p peer ID for an overlay address.
func PeerID(address protocol.PublicKey) (peer.ID, error) {
	pub, err := libp2pcrypto.UnmarshalEd25519PublicKey(address[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return peer.IDFromPublicKey(pub)
}
