package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// MemoryEntryRepository keeps ledger entries in process memory, ordered by
// sequence per tenant. Entries are cloned on the way in and out so callers
// never share state with the store. It backs the memory database driver and
// the use case tests.
type MemoryEntryRepository struct {
	mu sync.RWMutex
	// entries holds each tenant ledger ordered by sequence. A tenant keeps its
	// key after a full purge.
	entries map[string][]*auditDomain.Entry
}

// Create appends a clone of entry. A sequence not above the current head
// returns ErrSequenceConflict.
func (m *MemoryEntryRepository) Create(_ context.Context, entry *auditDomain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger := m.entries[entry.TenantID]
	if n := len(ledger); n > 0 && ledger[n-1].Sequence >= entry.Sequence {
		return auditDomain.ErrSequenceConflict
	}
	m.entries[entry.TenantID] = append(ledger, cloneEntry(entry))
	return nil
}

// Get returns a clone of one entry or ErrEntryNotFound.
func (m *MemoryEntryRepository) Get(_ context.Context, tenantID string, id uuid.UUID) (*auditDomain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[tenantID] {
		if e.ID == id {
			return cloneEntry(e), nil
		}
	}
	return nil, auditDomain.ErrEntryNotFound
}

// Latest returns the highest-sequence entry of the tenant.
func (m *MemoryEntryRepository) Latest(_ context.Context, tenantID string) (*auditDomain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ledger := m.entries[tenantID]
	if len(ledger) == 0 {
		return nil, auditDomain.ErrEntryNotFound
	}
	return cloneEntry(ledger[len(ledger)-1]), nil
}

// ListRange returns up to limit entries with fromSeq <= sequence <= toSeq in
// ascending order. A zero toSeq has no upper bound.
func (m *MemoryEntryRepository) ListRange(
	_ context.Context,
	tenantID string,
	fromSeq, toSeq uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ledger := m.entries[tenantID]
	start := sort.Search(len(ledger), func(i int) bool { return ledger[i].Sequence >= fromSeq })
	upper := upperBound(toSeq)

	var out []*auditDomain.Entry
	for _, e := range ledger[start:] {
		if e.Sequence > upper || len(out) == limit {
			break
		}
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

// LockFrom marks every unlocked entry at or after fromSeq as locked and
// returns how many it marked.
func (m *MemoryEntryRepository) LockFrom(
	_ context.Context,
	tenantID string,
	fromSeq uint64,
	lockedAt time.Time,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, e := range m.entries[tenantID] {
		if e.Sequence >= fromSeq && !e.Locked {
			at := lockedAt
			e.Locked = true
			e.LockedAt = &at
			n++
		}
	}
	return n, nil
}

// ListTenants returns every tenant with at least one stored entry, sorted.
func (m *MemoryEntryRepository) ListTenants(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.entries)), nil
}

// DeleteThrough removes entries up to and including throughSeq.
func (m *MemoryEntryRepository) DeleteThrough(_ context.Context, tenantID string, throughSeq uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger := m.entries[tenantID]
	cut := sort.Search(len(ledger), func(i int) bool { return ledger[i].Sequence > throughSeq })
	m.entries[tenantID] = slices.Clone(ledger[cut:])
	return int64(cut), nil
}

// Tamper replaces a stored entry in place, bypassing the ledger. It exists so
// tests and drills can simulate out-of-band modification of the store.
func (m *MemoryEntryRepository) Tamper(tenantID string, id uuid.UUID, mutate func(e *auditDomain.Entry)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries[tenantID] {
		if e.ID == id {
			mutate(e)
			return true
		}
	}
	return false
}

// cloneEntry deep-copies an entry, including its details map.
func cloneEntry(e *auditDomain.Entry) *auditDomain.Entry {
	c := *e
	c.Details = maps.Clone(e.Details)
	if e.LockedAt != nil {
		at := *e.LockedAt
		c.LockedAt = &at
	}
	return &c
}

// NewMemoryEntryRepository creates an empty in-memory entry repository.
func NewMemoryEntryRepository() *MemoryEntryRepository {
	return &MemoryEntryRepository{entries: make(map[string][]*auditDomain.Entry)}
}

// MemoryStateRepository keeps LedgerState rows in process memory.
type MemoryStateRepository struct {
	mu     sync.RWMutex
	states map[string]auditDomain.LedgerState
}

// Get returns a copy of the stored state or a fresh clean state.
func (m *MemoryStateRepository) Get(_ context.Context, tenantID string) (*auditDomain.LedgerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[tenantID]
	if !ok {
		return auditDomain.NewLedgerState(tenantID), nil
	}
	return &state, nil
}

// Upsert stores a copy of state.
func (m *MemoryStateRepository) Upsert(_ context.Context, state *auditDomain.LedgerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[state.TenantID] = *state
	return nil
}

// NewMemoryStateRepository creates an empty in-memory state repository.
func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{states: make(map[string]auditDomain.LedgerState)}
}
