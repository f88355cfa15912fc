package secrets

import (
	"sync"
	"time"

	"github.com/kevin07696/gateway-sync/internal/domain/ports"
)

// secretCache is an in-memory TTL cache shared by the remote backends.
type secretCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

type cacheEntry struct {
	secret    *ports.Secret
	expiresAt time.Time
}

func newSecretCache(enabled bool, ttl time.Duration) *secretCache {
	return &secretCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		enabled: enabled && ttl > 0,
		now:     time.Now,
	}
}

func (c *secretCache) get(key string) *ports.Secret {
	if !c.enabled {
		return nil
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil
	}
	return entry.secret
}

func (c *secretCache) set(key string, secret *ports.Secret) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{secret: secret, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
