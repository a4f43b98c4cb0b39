package network

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ZentaChain/overlay-node/pkg/crypto"
	"github.com/ZentaChain/overlay-node/pkg/identity"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

// DefaultSessionCacheSize bounds the number of peers whose session keys are kept.
const DefaultSessionCacheSize = 1024

// sessionCache derives session key pairs on first use and keeps the most recently used ones.
type sessionCache struct {
	id    *identity.Identity
	cache *lru.Cache
}

func newSessionCache(id *identity.Identity, size int) (*sessionCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &sessionCache{id: id, cache: cache}, nil
}

// get returns the session shared with peer, deriving it when it is not cached.
func (c *sessionCache) get(peer protocol.PublicKey) (crypto.SessionPair, error) {
	if v, ok := c.cache.Get(peer); ok {
		return v.(crypto.SessionPair), nil
	}
	session, err := c.id.SessionWith(peer)
	if err != nil {
		return crypto.SessionPair{}, err
	}
	c.cache.Add(peer, session)
	return session, nil
}

func (c *sessionCache) len() int {
	return c.cache.Len()
}

type powKey struct {
	peer protocol.PublicKey
	pow  protocol.ProofOfWork
}

// powCache remembers proof of work checks so that every frame of a peer costs one hash at most.
type powCache struct {
	difficulty int
	cache      *lru.Cache
}

func newPowCache(difficulty, size int) (*powCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof of work cache: %w", err)
	}
	return &powCache{difficulty: difficulty, cache: cache}, nil
}

func (c *powCache) valid(peer protocol.PublicKey, pow protocol.ProofOfWork) bool {
	key := powKey{peer: peer, pow: pow}
	if v, ok := c.cache.Get(key); ok {
		return v.(bool)
	}
	ok := identity.ValidProofOfWork(peer, pow, c.difficulty)
	c.cache.Add(key, ok)
	return ok
}
