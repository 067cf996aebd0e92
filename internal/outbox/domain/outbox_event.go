// Package domain defines the transactional outbox event model.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventTypeTamperAlert carries an audit TamperAlert as JSON payload.
const EventTypeTamperAlert = "audit.tamper_alert"

// OutboxEventStatus is the delivery state of an outbox event.
type OutboxEventStatus string

const (
	// OutboxEventStatusPending events are picked up by the next processing tick.
	OutboxEventStatusPending OutboxEventStatus = "pending"
	// OutboxEventStatusProcessed events were delivered and are never retried.
	OutboxEventStatusProcessed OutboxEventStatus = "processed"
	// OutboxEventStatusFailed events exhausted their retries or have no
	// processor. They stay in the table for operators to inspect.
	OutboxEventStatusFailed OutboxEventStatus = "failed"
)

// OutboxEvent is a side effect committed together with the state change that
// caused it and delivered later by the outbox processor.
type OutboxEvent struct {
	ID          uuid.UUID
	EventType   string
	Payload     string
	Status      OutboxEventStatus
	Retries     int
	LastError   *string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOutboxEvent returns a pending event with a time-ordered ID.
func NewOutboxEvent(eventType string, payload []byte, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:        uuid.Must(uuid.NewV7()),
		EventType: eventType,
		Payload:   string(payload),
		Status:    OutboxEventStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkDelivered moves the event to processed and clears the last error.
func (e *OutboxEvent) MarkDelivered(now time.Time) {
	e.Status = OutboxEventStatusProcessed
	e.ProcessedAt = &now
	e.LastError = nil
	e.UpdatedAt = now
}

// RecordFailure counts a failed attempt. The event is parked as failed once
// Retries reaches maxRetries, and RecordFailure reports whether that happened.
func (e *OutboxEvent) RecordFailure(cause error, maxRetries int, now time.Time) bool {
	msg := cause.Error()
	e.Retries++
	e.LastError = &msg
	e.UpdatedAt = now
	if e.Retries >= maxRetries {
		e.Status = OutboxEventStatusFailed
		return true
	}
	return false
}

// Abandon parks the event as failed without further attempts.
func (e *OutboxEvent) Abandon(cause error, now time.Time) {
	msg := cause.Error()
	e.LastError = &msg
	e.Status = OutboxEventStatusFailed
	e.UpdatedAt = now
}
