package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	migrationDomain "github.com/allisson/casevault/internal/migration/domain"
)

// MemoryRecordCollection is an in-memory RecordCollection keyed by tenant and
// record ID. It backs the collections configured under the memory driver and
// the migration engine tests; records are copied on every read and write.
type MemoryRecordCollection struct {
	name    string
	mu      sync.RWMutex
	records map[string]map[string]map[string]string
}

// Name implements RecordCollection.
func (m *MemoryRecordCollection) Name() string {
	return m.name
}

// Put stores a copy of record for the tenant, replacing any previous value.
func (m *MemoryRecordCollection) Put(tenantID string, record migrationDomain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tenant, ok := m.records[tenantID]
	if !ok {
		tenant = make(map[string]map[string]string)
		m.records[tenantID] = tenant
	}
	tenant[record.ID] = maps.Clone(record.Fields)
}

// Get returns a copy of the record.
func (m *MemoryRecordCollection) Get(tenantID, id string) (migrationDomain.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fields, ok := m.records[tenantID][id]
	if !ok {
		return migrationDomain.Record{}, false
	}
	return migrationDomain.Record{ID: id, Fields: maps.Clone(fields)}, true
}

// FetchBatch returns records in ascending ID order after afterID.
func (m *MemoryRecordCollection) FetchBatch(
	_ context.Context,
	tenantID, afterID string,
	limit int,
) ([]migrationDomain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenant := m.records[tenantID]
	ids := make([]string, 0, len(tenant))
	for id := range tenant {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]migrationDomain.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, migrationDomain.Record{ID: id, Fields: maps.Clone(tenant[id])})
	}
	return records, nil
}

// ApplyUpdates writes each update whose field still holds its Previous value
// and returns the IDs of records with an update that did not match.
func (m *MemoryRecordCollection) ApplyUpdates(
	_ context.Context,
	tenantID string,
	updates []migrationDomain.FieldUpdate,
) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []string
	tenant := m.records[tenantID]
	for _, u := range updates {
		fields, ok := tenant[u.RecordID]
		if !ok || fields[u.Field] != u.Previous {
			if !slices.Contains(stale, u.RecordID) {
				stale = append(stale, u.RecordID)
			}
			continue
		}
		fields[u.Field] = u.Value
	}
	return stale, nil
}

// NewMemoryRecordCollection creates an empty named collection.
func NewMemoryRecordCollection(name string) *MemoryRecordCollection {
	return &MemoryRecordCollection{
		name:    name,
		records: make(map[string]map[string]map[string]string),
	}
}

type checkpointKey struct {
	tenantID   string
	collection string
	oldVersion uint
	newVersion uint
}

// MemoryCheckpointRepository stores checkpoints in memory.
type MemoryCheckpointRepository struct {
	mu          sync.RWMutex
	checkpoints map[checkpointKey]migrationDomain.Checkpoint
}

// Get returns a copy of the stored checkpoint.
func (m *MemoryCheckpointRepository) Get(
	_ context.Context,
	tenantID, collection string,
	oldVersion, newVersion uint,
) (*migrationDomain.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	checkpoint, ok := m.checkpoints[checkpointKey{tenantID, collection, oldVersion, newVersion}]
	if !ok {
		return nil, migrationDomain.ErrCheckpointNotFound
	}
	return &checkpoint, nil
}

// Save creates or replaces the checkpoint.
func (m *MemoryCheckpointRepository) Save(_ context.Context, checkpoint *migrationDomain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := checkpointKey{checkpoint.TenantID, checkpoint.Collection, checkpoint.OldVersion, checkpoint.NewVersion}
	m.checkpoints[key] = *checkpoint
	return nil
}

// NewMemoryCheckpointRepository creates an empty MemoryCheckpointRepository.
func NewMemoryCheckpointRepository() *MemoryCheckpointRepository {
	return &MemoryCheckpointRepository{checkpoints: make(map[checkpointKey]migrationDomain.Checkpoint)}
}
