package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/casevault/internal/outbox/domain"
)

// MemoryOutboxEventRepository stores outbox events in memory for the "memory"
// driver. Events are copied on the way in and out.
type MemoryOutboxEventRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID]domain.OutboxEvent
}

// Create stores a copy of event.
func (m *MemoryOutboxEventRepository) Create(_ context.Context, event *domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[event.ID] = *event
	return nil
}

// GetPendingEvents returns up to limit pending events, oldest first.
func (m *MemoryOutboxEventRepository) GetPendingEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*domain.OutboxEvent
	for _, event := range m.events {
		if event.Status == domain.OutboxEventStatusPending {
			e := event
			pending = append(pending, &e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID.String() < pending[j].ID.String()
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Update replaces the stored event.
func (m *MemoryOutboxEventRepository) Update(_ context.Context, event *domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *event
	e.UpdatedAt = time.Now().UTC()
	m.events[event.ID] = e
	return nil
}

// List returns copies of all events regardless of status.
func (m *MemoryOutboxEventRepository) List() []*domain.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]*domain.OutboxEvent, 0, len(m.events))
	for _, event := range m.events {
		e := event
		events = append(events, &e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events
}

// NewMemoryOutboxEventRepository creates an empty MemoryOutboxEventRepository.
func NewMemoryOutboxEventRepository() *MemoryOutboxEventRepository {
	return &MemoryOutboxEventRepository{events: make(map[uuid.UUID]domain.OutboxEvent)}
}

// MemoryTenantWebhookRepository stores tenant webhooks in memory.
type MemoryTenantWebhookRepository struct {
	mu       sync.RWMutex
	webhooks map[string]domain.TenantWebhook
}

// Get returns a copy of the tenant's webhook.
func (m *MemoryTenantWebhookRepository) Get(_ context.Context, tenantID string) (*domain.TenantWebhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	webhook, ok := m.webhooks[tenantID]
	if !ok {
		return nil, domain.ErrTenantWebhookNotFound
	}
	webhook.Secret = append([]byte(nil), webhook.Secret...)
	return &webhook, nil
}

// Upsert creates or replaces the tenant's webhook.
func (m *MemoryTenantWebhookRepository) Upsert(_ context.Context, webhook *domain.TenantWebhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := *webhook
	w.Secret = append([]byte(nil), webhook.Secret...)
	if existing, ok := m.webhooks[webhook.TenantID]; ok {
		w.CreatedAt = existing.CreatedAt
	}
	m.webhooks[webhook.TenantID] = w
	return nil
}

// NewMemoryTenantWebhookRepository creates an empty MemoryTenantWebhookRepository.
func NewMemoryTenantWebhookRepository() *MemoryTenantWebhookRepository {
	return &MemoryTenantWebhookRepository{webhooks: make(map[string]domain.TenantWebhook)}
}
