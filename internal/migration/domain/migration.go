// Package domain defines the records, checkpoints and results of the
// re-encryption migration engine.
package domain

import "time"

// Record is one row of a collection with its protected field values.
type Record struct {
	ID     string
	Fields map[string]string
}

// FieldUpdate replaces Previous with Value in one field of one record. The
// write is skipped when the stored value no longer equals Previous, so a
// concurrent application write is never overwritten.
type FieldUpdate struct {
	RecordID string
	Field    string
	Previous string
	Value    string
}

// RecordError describes a record left for a later retry pass.
type RecordError struct {
	Collection string `json:"collection"`
	RecordID   string `json:"record_id"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
}

// CollectionResult accumulates the outcome of one collection.
type CollectionResult struct {
	Collection string        `json:"collection"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Batches    int           `json:"batches"`
	Errors     []RecordError `json:"errors,omitempty"`
	LastCursor string        `json:"last_cursor"`
	Resumed    bool          `json:"resumed"`
	Completed  bool          `json:"completed"`
	// Error is set when the collection stopped early on a storage failure.
	Error string `json:"error,omitempty"`
}

// Result is the structured report of one migration run.
type Result struct {
	TenantID    string             `json:"tenant_id"`
	OldVersion  uint               `json:"old_version"`
	NewVersion  uint               `json:"new_version"`
	Collections []CollectionResult `json:"collections"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Canceled    bool               `json:"canceled"`
}

// Totals sums the per-collection counters.
func (r *Result) Totals() (processed, succeeded, failed, skipped int) {
	for _, c := range r.Collections {
		processed += c.Processed
		succeeded += c.Succeeded
		failed += c.Failed
		skipped += c.Skipped
	}
	return processed, succeeded, failed, skipped
}

// Checkpoint is the resumption point of a collection for one
// (tenant, old version, new version) migration.
type Checkpoint struct {
	TenantID   string
	Collection string
	OldVersion uint
	NewVersion uint
	LastCursor string
	Completed  bool
	UpdatedAt  time.Time
}
