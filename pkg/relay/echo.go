// Copyright 2024-2026 Aiku AI

package relay

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Echo cache defaults.
const (
	DefaultEchoTTL  = 10 * time.Minute
	DefaultEchoSize = 10000
)

// EchoCache remembers message ids the relay itself posted, so the copies
// that come back through the platforms' inbound feeds can be dropped.
// It is the only mutable state shared between Route calls. When full, the
// least recently delivered id is forgotten first.
type EchoCache struct {
	ttl     time.Duration
	size    int
	entries *expirable.LRU[string, struct{}]
}

// NewEchoCache creates a cache holding at most size ids for ttl each.
// Non-positive values use DefaultEchoSize and DefaultEchoTTL.
func NewEchoCache(size int, ttl time.Duration) *EchoCache {
	if ttl <= 0 {
		ttl = DefaultEchoTTL
	}
	if size <= 0 {
		size = DefaultEchoSize
	}
	return &EchoCache{
		ttl:     ttl,
		size:    size,
		entries: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Remember records a delivered message by its canonical id.
func (c *EchoCache) Remember(messageID string) {
	if c == nil || messageID == "" {
		return
	}
	c.entries.Add(messageID, struct{}{})
}

// Seen reports whether the canonical id was delivered by the relay within
// the TTL.
func (c *EchoCache) Seen(messageID string) bool {
	if c == nil || messageID == "" {
		return false
	}
	_, ok := c.entries.Peek(messageID)
	return ok
}

// Len returns the number of remembered ids. Expired ids count until the
// cache's background sweep removes them.
func (c *EchoCache) Len() int {
	return c.entries.Len()
}
