package usecase

import (
	"context"
	"time"

	encryptionDomain "github.com/allisson/casevault/internal/encryption/domain"
	"github.com/allisson/casevault/internal/metrics"
)

// encryptionUseCaseWithMetrics decorates EncryptionUseCase with metrics instrumentation.
type encryptionUseCaseWithMetrics struct {
	next    EncryptionUseCase
	metrics metrics.BusinessMetrics
}

// NewEncryptionUseCaseWithMetrics wraps an EncryptionUseCase with metrics recording.
func NewEncryptionUseCaseWithMetrics(useCase EncryptionUseCase, m metrics.BusinessMetrics) EncryptionUseCase {
	return &encryptionUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record emits the operation counter and duration histogram for one encryption call.
func (e *encryptionUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	e.metrics.RecordOperation(ctx, "encryption", operation, status)
	e.metrics.RecordDuration(ctx, "encryption", operation, time.Since(start), status)
}

// EncryptValue records metrics for field encryption.
func (e *encryptionUseCaseWithMetrics) EncryptValue(ctx context.Context, tenantID, plaintext string) (string, error) {
	start := time.Now()
	out, err := e.next.EncryptValue(ctx, tenantID, plaintext)
	e.record(ctx, "encrypt_value", start, err)
	return out, err
}

// DecryptValue records metrics for field decryption.
func (e *encryptionUseCaseWithMetrics) DecryptValue(ctx context.Context, tenantID, value string) (string, error) {
	start := time.Now()
	out, err := e.next.DecryptValue(ctx, tenantID, value)
	e.record(ctx, "decrypt_value", start, err)
	return out, err
}

// EncryptData records metrics for binary payload encryption.
func (e *encryptionUseCaseWithMetrics) EncryptData(ctx context.Context, tenantID string, data []byte) (string, error) {
	start := time.Now()
	out, err := e.next.EncryptData(ctx, tenantID, data)
	e.record(ctx, "encrypt_data", start, err)
	return out, err
}

// DecryptData records metrics for binary payload decryption.
func (e *encryptionUseCaseWithMetrics) DecryptData(ctx context.Context, tenantID, envelope string) ([]byte, error) {
	start := time.Now()
	out, err := e.next.DecryptData(ctx, tenantID, envelope)
	e.record(ctx, "decrypt_data", start, err)
	return out, err
}

// ReEncryptValue records metrics for re-encryption under the active version.
func (e *encryptionUseCaseWithMetrics) ReEncryptValue(
	ctx context.Context,
	tenantID, value string,
	targetVersion uint,
) (string, error) {
	start := time.Now()
	out, err := e.next.ReEncryptValue(ctx, tenantID, value, targetVersion)
	e.record(ctx, "reencrypt_value", start, err)
	return out, err
}

// DecryptFields records metrics for batch field decryption.
func (e *encryptionUseCaseWithMetrics) DecryptFields(
	ctx context.Context,
	tenantID string,
	fields map[string]string,
) map[string]encryptionDomain.FieldResult {
	start := time.Now()
	results := e.next.DecryptFields(ctx, tenantID, fields)
	// A degraded field marks the whole call as an error.
	var err error
	for _, r := range results {
		if r.Unavailable {
			err = r.Error
			break
		}
	}
	e.record(ctx, "decrypt_fields", start, err)
	return results
}

// AccessSensitiveField records metrics for audited field access.
func (e *encryptionUseCaseWithMetrics) AccessSensitiveField(
	ctx context.Context,
	access *encryptionDomain.FieldAccess,
) (string, error) {
	start := time.Now()
	out, err := e.next.AccessSensitiveField(ctx, access)
	e.record(ctx, "access_sensitive_field", start, err)
	return out, err
}
