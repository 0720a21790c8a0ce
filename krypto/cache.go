package krypto

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"
)

const (
	cacheMaxEntries = 10
	cacheTTL        = 5 * time.Minute

	lookupPasswordPrefix = 8
	lookupSaltPrefix     = 8
)

// cacheLookupKey builds the cache key from the first 8 password characters,
// the first 8 salt bytes, the iteration count, and the key length. The full
// password never enters the cache map; prefix collisions are resolved on
// lookup against the entry's password digest and full salt.
func cacheLookupKey(password string, salt []byte, iterations, keyBits int) string {
	pw := password
	if len(pw) > lookupPasswordPrefix {
		pw = pw[:lookupPasswordPrefix]
	}
	sp := salt
	if len(sp) > lookupSaltPrefix {
		sp = sp[:lookupSaltPrefix]
	}
	return fmt.Sprintf("%s:%x:%d:%d", pw, sp, iterations, keyBits)
}

type cacheEntry struct {
	lookup   string
	pwDigest [sha256.Size]byte
	key      *SecureKey
}

// keyCache is a bounded FIFO cache of derived keys. Eviction is
// oldest-inserted-first once the size limit is hit; entries also expire after
// the TTL, checked opportunistically on every access. The mutex matters:
// concurrent derivations for the same lookup key would otherwise double-insert.
type keyCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]*cacheEntry
	order   []string // insertion order, oldest first
}

func newKeyCache(max int, ttl time.Duration) *keyCache {
	return &keyCache{
		max:     max,
		ttl:     ttl,
		entries: make(map[string]*cacheEntry, max),
	}
}

func (c *keyCache) setLimits(max int, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if max > 0 {
		c.max = max
	}
	if ttl > 0 {
		c.ttl = ttl
	}
	c.pruneLocked(time.Now().UTC())
}

// get returns a cached key younger than the TTL whose password digest and
// full salt match the request exactly, or nil. The truncated lookup key alone
// is never trusted: two passwords sharing a prefix must not share a key.
func (c *keyCache) get(lookup string, pwDigest [sha256.Size]byte, salt []byte) *SecureKey {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)

	e, ok := c.entries[lookup]
	if !ok {
		return nil
	}
	if subtle.ConstantTimeCompare(e.pwDigest[:], pwDigest[:]) != 1 {
		return nil
	}
	if !bytes.Equal(e.key.Salt, salt) {
		return nil
	}
	return e.key
}

// put inserts a derived key, evicting the oldest insertion when full.
func (c *keyCache) put(lookup string, pwDigest [sha256.Size]byte, key *SecureKey) {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)

	if _, ok := c.entries[lookup]; ok {
		// Lost a race with a concurrent derivation; keep the first insert.
		return
	}

	for len(c.entries) >= c.max && len(c.order) > 0 {
		c.evictOldestLocked()
	}

	c.entries[lookup] = &cacheEntry{lookup: lookup, pwDigest: pwDigest, key: key}
	c.order = append(c.order, lookup)
}

// pruneLocked drops entries past the TTL. Caller holds the mutex.
func (c *keyCache) pruneLocked(now time.Time) {
	kept := c.order[:0]
	for _, lookup := range c.order {
		e, ok := c.entries[lookup]
		if !ok {
			continue
		}
		if now.Sub(e.key.CreatedAt) >= c.ttl {
			// Dropped, not zeroed: a caller may still hold the handle.
			delete(c.entries, lookup)
			continue
		}
		kept = append(kept, lookup)
	}
	c.order = kept
}

func (c *keyCache) evictOldestLocked() {
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

// purge drops every entry and zeroes the cached key material. Used on
// lock/sign-out.
func (c *keyCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.key.Zero()
	}
	c.entries = make(map[string]*cacheEntry, c.max)
	c.order = nil
}
