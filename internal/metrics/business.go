package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics records the outcome of use case calls. domain is the
// component ("crypto", "encryption", "migration", "audit") and operation the
// call within it, e.g. "key_rotate" or "audit_verify_chain".
type BusinessMetrics interface {
	// RecordOperation counts one call with its status ("success", "error", "partial").
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration observes the latency of one call in seconds.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// RecordRecords adds count records of a collection that ended with outcome
	// ("succeeded", "failed", "skipped") during a migration run.
	RecordRecords(ctx context.Context, collection, outcome string, count int)

	// RecordIntegrityViolation counts a tamper response triggered by kind.
	RecordIntegrityViolation(ctx context.Context, kind string)
}

type otelBusinessMetrics struct {
	operations metric.Int64Counter
	latency    metric.Float64Histogram
	records    metric.Int64Counter
	violations metric.Int64Counter
}

// NewBusinessMetrics builds the recorder on meterProvider. Instrument names
// are prefixed with namespace, e.g. casevault_operations_total.
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)
	m := &otelBusinessMetrics{}

	var err error
	if m.operations, err = meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Total number of use case calls"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	if m.latency, err = meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Latency of use case calls in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	if m.records, err = meter.Int64Counter(
		fmt.Sprintf("%s_migration_records_total", namespace),
		metric.WithDescription("Records processed by re-encryption migrations"),
		metric.WithUnit("{record}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create migration record counter: %w", err)
	}

	if m.violations, err = meter.Int64Counter(
		fmt.Sprintf("%s_audit_integrity_violations_total", namespace),
		metric.WithDescription("Tamper responses triggered on audit ledgers"),
		metric.WithUnit("{violation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create integrity violation counter: %w", err)
	}

	return m, nil
}

func operationAttrs(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (m *otelBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.operations.Add(ctx, 1, operationAttrs(domain, operation, status))
}

func (m *otelBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.latency.Record(ctx, duration.Seconds(), operationAttrs(domain, operation, status))
}

func (m *otelBusinessMetrics) RecordRecords(ctx context.Context, collection, outcome string, count int) {
	if count <= 0 {
		return
	}
	m.records.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("outcome", outcome),
	))
}

func (m *otelBusinessMetrics) RecordIntegrityViolation(ctx context.Context, kind string) {
	m.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// NoOpBusinessMetrics discards every measurement. Used when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a no-op BusinessMetrics implementation.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return NoOpBusinessMetrics{}
}

func (NoOpBusinessMetrics) RecordOperation(context.Context, string, string, string) {}

func (NoOpBusinessMetrics) RecordDuration(context.Context, string, string, time.Duration, string) {}

func (NoOpBusinessMetrics) RecordRecords(context.Context, string, string, int) {}

func (NoOpBusinessMetrics) RecordIntegrityViolation(context.Context, string) {}
