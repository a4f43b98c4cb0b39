package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"gopkg.in/yaml.v3"

	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

// identityFile is the on-disk form. The secret key is a base64 encoded libp2p private key.
type identityFile struct {
	Address     string `yaml:"address"`
	SecretKey   string `yaml:"secret_key"`
	ProofOfWork int32  `yaml:"proof_of_work"`
}

// Save writes id to path with owner-only permissions.
func Save(path string, id *Identity) error {
	priv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(id.SecretKey)
	if err != nil {
		return fmt.Errorf("failed to convert secret key: %w", err)
	}
	raw, err := libp2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("failed to marshal secret key: %w", err)
	}

	data, err := yaml.Marshal(identityFile{
		Address:     id.Address.String(),
		SecretKey:   libp2pcrypto.ConfigEncodeKey(raw),
		ProofOfWork: int32(id.ProofOfWork),
	})
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create identity directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	return nil
}

// Load reads an identity written by Save.
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f identityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	raw, err := libp2pcrypto.ConfigDecodeKey(f.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: secret key: %v", ErrInvalidIdentity, err)
	}
	priv, err := libp2pcrypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: secret key: %v", ErrInvalidIdentity, err)
	}
	if priv.Type() != libp2pcrypto.Ed25519 {
		return nil, fmt.Errorf("%w: unsupported key type %s", ErrInvalidIdentity, priv.Type())
	}
	sec, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("%w: secret key: %v", ErrInvalidIdentity, err)
	}

	id, err := New(ed25519.PrivateKey(sec), protocol.ProofOfWork(f.ProofOfWork))
	if err != nil {
		return nil, err
	}
	if f.Address != "" && f.Address != id.Address.String() {
		return nil, fmt.Errorf("%w: address does not match secret key", ErrInvalidIdentity)
	}
	return id, nil
}

// LoadOrGenerate loads the identity at path, or generates and saves a new one if the file does
// not exist. The returned bool reports whether a new identity was created. A loaded identity
// whose proof of work does not meet difficulty is rejected.
func LoadOrGenerate(path string, difficulty int) (*Identity, bool, error) {
	id, err := Load(path)
	switch {
	case err == nil:
		if !id.IsValid(difficulty) {
			return nil, false, fmt.Errorf("%w: proof of work below difficulty %d", ErrInvalidIdentity, difficulty)
		}
		return id, false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, false, err
	}

	id, err = Generate(difficulty)
	if err != nil {
		return nil, false, err
	}
	if err := Save(path, id); err != nil {
		return nil, false, err
	}
	return id, true, nil
}
