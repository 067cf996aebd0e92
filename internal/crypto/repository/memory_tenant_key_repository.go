package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

// MemoryTenantKeyRepository keeps TenantKey rows in process memory. It enforces
// the same uniqueness rules as the SQL schemas.
type MemoryTenantKeyRepository struct {
	mu   sync.RWMutex
	keys map[string]map[uint]*cryptoDomain.TenantKey
}

// Create stores a copy of key. A duplicate version, or a second active row
// for the tenant, returns ErrKeyAlreadyExists.
func (m *MemoryTenantKeyRepository) Create(_ context.Context, key *cryptoDomain.TenantKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.keys[key.TenantID]
	if versions == nil {
		versions = make(map[uint]*cryptoDomain.TenantKey)
		m.keys[key.TenantID] = versions
	}
	if _, ok := versions[key.Version]; ok {
		return cryptoDomain.ErrKeyAlreadyExists
	}
	if key.IsActive {
		for _, existing := range versions {
			if existing.IsActive {
				return cryptoDomain.ErrKeyAlreadyExists
			}
		}
	}

	stored := key.Clone()
	stored.Key = nil
	versions[key.Version] = stored
	return nil
}

// Deactivate retires the active version. Retiring a missing or already
// retired version returns ErrKeyVersionNotFound.
func (m *MemoryTenantKeyRepository) Deactivate(
	_ context.Context,
	tenantID string,
	version uint,
	rotatedAt time.Time,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[tenantID][version]
	if !ok || !key.IsActive {
		return cryptoDomain.ErrKeyVersionNotFound
	}
	key.IsActive = false
	key.RotatedAt = &rotatedAt
	return nil
}

// GetActive returns a copy of the active version or ErrKeyNotFound.
func (m *MemoryTenantKeyRepository) GetActive(_ context.Context, tenantID string) (*cryptoDomain.TenantKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range m.keys[tenantID] {
		if key.IsActive {
			return key.Clone(), nil
		}
	}
	return nil, cryptoDomain.ErrKeyNotFound
}

// GetActiveForUpdate is GetActive. The memory driver runs a single process,
// where the use case's tenant lock already serializes rotations.
func (m *MemoryTenantKeyRepository) GetActiveForUpdate(
	ctx context.Context,
	tenantID string,
) (*cryptoDomain.TenantKey, error) {
	return m.GetActive(ctx, tenantID)
}

// GetByVersion returns a copy of one version or ErrKeyVersionNotFound.
func (m *MemoryTenantKeyRepository) GetByVersion(
	_ context.Context,
	tenantID string,
	version uint,
) (*cryptoDomain.TenantKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.keys[tenantID][version]
	if !ok {
		return nil, cryptoDomain.ErrKeyVersionNotFound
	}
	return key.Clone(), nil
}

// ListByTenant returns copies of every version, newest first.
func (m *MemoryTenantKeyRepository) ListByTenant(
	_ context.Context,
	tenantID string,
) ([]*cryptoDomain.TenantKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]*cryptoDomain.TenantKey, 0, len(m.keys[tenantID]))
	for _, key := range m.keys[tenantID] {
		keys = append(keys, key.Clone())
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Version > keys[j].Version })
	return keys, nil
}

// NewMemoryTenantKeyRepository creates an empty in-memory repository.
func NewMemoryTenantKeyRepository() *MemoryTenantKeyRepository {
	return &MemoryTenantKeyRepository{keys: make(map[string]map[uint]*cryptoDomain.TenantKey)}
}
