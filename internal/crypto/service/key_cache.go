package service

import (
	"sync"
	"time"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

type cachedKey struct {
	key       cryptoDomain.TenantKey
	fetchedAt time.Time
}

type retiredSlot struct {
	tenantID string
	version  uint
}

// TTLKeyCache holds unwrapped DEKs: the active version per tenant and any
// retired versions read since the last invalidation. Entries expire lazily on
// Get once older than ttl; a ttl of zero keeps entries until Invalidate or
// Purge. Evicted key material is zeroed.
//
// Retired versions never change once written, so they are cached by
// (tenant, version) and only dropped by expiry or invalidation of the tenant.
type TTLKeyCache struct {
	mu      sync.Mutex
	active  map[string]cachedKey
	retired map[retiredSlot]cachedKey
	ttl     time.Duration
	now     func() time.Time
}

// NewTTLKeyCache creates an empty cache.
func NewTTLKeyCache(ttl time.Duration) *TTLKeyCache {
	return &TTLKeyCache{
		active:  make(map[string]cachedKey),
		retired: make(map[retiredSlot]cachedKey),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached active key for tenantID.
func (c *TTLKeyCache) Get(tenantID string) (*cryptoDomain.TenantKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.active[tenantID]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		cryptoDomain.Zero(e.key.Key)
		delete(c.active, tenantID)
		return nil, false
	}
	return e.key.Clone(), true
}

// Set stores a copy of the active key, replacing and zeroing any previous entry.
func (c *TTLKeyCache) Set(key *cryptoDomain.TenantKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.active[key.TenantID]; ok {
		cryptoDomain.Zero(old.key.Key)
	}
	c.active[key.TenantID] = cachedKey{key: *key.Clone(), fetchedAt: c.now()}
}

// GetVersion returns a copy of a cached retired version.
func (c *TTLKeyCache) GetVersion(tenantID string, version uint) (*cryptoDomain.TenantKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := retiredSlot{tenantID: tenantID, version: version}
	e, ok := c.retired[slot]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		cryptoDomain.Zero(e.key.Key)
		delete(c.retired, slot)
		return nil, false
	}
	return e.key.Clone(), true
}

// SetVersion stores a copy of a retired version. Active keys belong in Set and
// are ignored here.
func (c *TTLKeyCache) SetVersion(key *cryptoDomain.TenantKey) {
	if key.IsActive {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	slot := retiredSlot{tenantID: key.TenantID, version: key.Version}
	if old, ok := c.retired[slot]; ok {
		cryptoDomain.Zero(old.key.Key)
	}
	c.retired[slot] = cachedKey{key: *key.Clone(), fetchedAt: c.now()}
}

// Invalidate drops every entry of tenantID, active and retired.
func (c *TTLKeyCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.active[tenantID]; ok {
		cryptoDomain.Zero(e.key.Key)
		delete(c.active, tenantID)
	}
	for slot, e := range c.retired {
		if slot.tenantID == tenantID {
			cryptoDomain.Zero(e.key.Key)
			delete(c.retired, slot)
		}
	}
}

// Purge drops every entry.
func (c *TTLKeyCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tenantID, e := range c.active {
		cryptoDomain.Zero(e.key.Key)
		delete(c.active, tenantID)
	}
	for slot, e := range c.retired {
		cryptoDomain.Zero(e.key.Key)
		delete(c.retired, slot)
	}
}

// Len returns the number of cached keys, expired or not.
func (c *TTLKeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active) + len(c.retired)
}

func (c *TTLKeyCache) expired(e cachedKey) bool {
	return c.ttl > 0 && c.now().Sub(e.fetchedAt) >= c.ttl
}
