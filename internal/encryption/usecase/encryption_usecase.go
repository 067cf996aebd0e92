package usecase

import (
	"context"
	"fmt"
	"log/slog"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
	cryptoService "github.com/allisson/casevault/internal/crypto/service"
	cryptoUseCase "github.com/allisson/casevault/internal/crypto/usecase"
	encryptionDomain "github.com/allisson/casevault/internal/encryption/domain"
)

// encryptionUseCase implements EncryptionUseCase over the tenant key use case
// and an AEADManager.
type encryptionUseCase struct {
	keys        cryptoUseCase.TenantKeyUseCase
	aeadManager cryptoService.AEADManager
	audit       AuditAppender
	logger      *slog.Logger
}

// EncryptValue encrypts a string field under the tenant's active key.
//
// The call is idempotent on ciphertext: a well-formed envelope comes back
// unchanged, so a value is never wrapped twice. A value carrying the envelope
// tag that does not parse is rejected rather than encrypted again.
//
// Parameters:
//   - ctx: Context for the key lookup
//   - tenantID: The owning tenant; also bound into the envelope as associated data
//   - plaintext: The value to protect
//
// Returns:
//   - The envelope string
//   - ErrInvalidEnvelope for a damaged envelope, or a key management error
func (e *encryptionUseCase) EncryptValue(ctx context.Context, tenantID, plaintext string) (string, error) {
	if cryptoService.IsTagged(plaintext) {
		if _, err := cryptoDomain.ParseEnvelope(plaintext); err != nil {
			return "", fmt.Errorf("encrypt value: %w", err)
		}
		return plaintext, nil
	}
	return e.EncryptData(ctx, tenantID, []byte(plaintext))
}

// DecryptValue opens a string field.
//
// Untagged values are legacy plaintext and come back unchanged, which keeps
// mixed corpora readable during a migration window. Tagged values always go
// through decryption, so a damaged envelope surfaces as ErrDecryptionFailed
// instead of leaking ciphertext to the caller as if it were plaintext.
func (e *encryptionUseCase) DecryptValue(ctx context.Context, tenantID, value string) (string, error) {
	if !cryptoService.IsTagged(value) {
		return value, nil
	}
	plaintext, err := e.DecryptData(ctx, tenantID, value)
	if err != nil {
		return "", err
	}
	defer cryptoDomain.Zero(plaintext)
	return string(plaintext), nil
}

// EncryptData encrypts raw bytes under the tenant's active key, creating the
// tenant's first key version on first use.
func (e *encryptionUseCase) EncryptData(ctx context.Context, tenantID string, data []byte) (string, error) {
	key, err := e.keys.GetOrCreateActiveKey(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return e.seal(key, tenantID, data)
}

// DecryptData opens an envelope with the key version recorded in it.
//
// Parameters:
//   - ctx: Context for the key lookup
//   - tenantID: The owning tenant; must match the tenant the envelope was sealed for
//   - envelope: The stored envelope string
//
// Returns:
//   - The plaintext; the caller owns it and should zero it when done
//   - ErrDecryptionFailed for a malformed envelope or a tag mismatch,
//     ErrKeyVersionNotFound for an unknown version, or a key management error
func (e *encryptionUseCase) DecryptData(ctx context.Context, tenantID, envelope string) ([]byte, error) {
	if tenantID == "" {
		return nil, cryptoDomain.ErrInvalidTenantID
	}

	env, err := cryptoDomain.ParseEnvelope(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrDecryptionFailed, err)
	}

	key, err := e.keys.GetKeyByVersion(ctx, tenantID, env.KeyVersion)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	cipher, err := e.aeadManager.CreateCipher(key.Key, key.Algorithm)
	if err != nil {
		return nil, err
	}
	return cryptoService.DecryptEnvelope(cipher, env, []byte(tenantID))
}

// ReEncryptValue moves value to targetVersion. It is the per-field step of the
// migration engine.
//
// Envelopes already under targetVersion are returned unchanged, which makes a
// resumed batch cheap. Other envelopes are opened with their own version and
// sealed again; untagged plaintext is sealed directly.
//
// Parameters:
//   - ctx: Context for the key lookups
//   - tenantID: The owning tenant
//   - value: Plaintext or an envelope under any version
//   - targetVersion: The version the result must be sealed under
//
// Returns:
//   - The envelope under targetVersion
//   - ErrDecryptionFailed for a damaged envelope, or a key management error
func (e *encryptionUseCase) ReEncryptValue(
	ctx context.Context,
	tenantID, value string,
	targetVersion uint,
) (string, error) {
	plaintext := []byte(value)
	if cryptoService.IsTagged(value) {
		version, err := cryptoDomain.EnvelopeVersion(value)
		if err != nil {
			return "", fmt.Errorf("%w: %w", cryptoDomain.ErrDecryptionFailed, err)
		}
		if version == targetVersion {
			return value, nil
		}
		if plaintext, err = e.DecryptData(ctx, tenantID, value); err != nil {
			return "", err
		}
		defer cryptoDomain.Zero(plaintext)
	}

	key, err := e.keys.GetKeyByVersion(ctx, tenantID, targetVersion)
	if err != nil {
		return "", err
	}
	return e.seal(key, tenantID, plaintext)
}

// seal encrypts data under key and wipes the key.
func (e *encryptionUseCase) seal(key *cryptoDomain.TenantKey, tenantID string, data []byte) (string, error) {
	defer key.Wipe()

	cipher, err := e.aeadManager.CreateCipher(key.Key, key.Algorithm)
	if err != nil {
		return "", err
	}
	return cryptoService.Encrypt(cipher, key.Version, data, []byte(tenantID))
}

// DecryptFields opens every field of a record on its own.
//
// A field that fails is reported as unavailable with the error attached, and
// the remaining fields are still returned, so one damaged value does not hide
// the rest of the record. Failures are logged with the field name only.
func (e *encryptionUseCase) DecryptFields(
	ctx context.Context,
	tenantID string,
	fields map[string]string,
) map[string]encryptionDomain.FieldResult {
	results := make(map[string]encryptionDomain.FieldResult, len(fields))
	for name, value := range fields {
		plaintext, err := e.DecryptValue(ctx, tenantID, value)
		if err != nil {
			e.logger.Error("failed to decrypt field",
				slog.String("tenant_id", tenantID),
				slog.String("field", name),
				slog.Any("error", err),
			)
			results[name] = encryptionDomain.FieldResult{
				Value:       encryptionDomain.FieldUnavailableMessage,
				Unavailable: true,
				Error:       err,
			}
			continue
		}
		results[name] = encryptionDomain.FieldResult{Value: plaintext}
	}
	return results
}

// AccessSensitiveField reads one sensitive field on behalf of an actor.
//
// The access is appended to the tenant's audit ledger first, as
// field.accessed or, when the actor belongs to another tenant,
// cross_tenant.accessed. Only after the append succeeds is the value
// decrypted, so every disclosed plaintext has a ledger entry.
//
// Parameters:
//   - ctx: Context carrying the actor ID
//   - access: The tenant, resource, field, stored value and optional reason
//
// Returns:
//   - The plaintext value
//   - ErrInvalidFieldAccess, the ledger error when the append fails, or a decryption error
func (e *encryptionUseCase) AccessSensitiveField(
	ctx context.Context,
	access *encryptionDomain.FieldAccess,
) (string, error) {
	if err := access.Validate(); err != nil {
		return "", err
	}

	action := auditDomain.ActionFieldAccessed
	details := map[string]string{"field": access.Field}
	if access.Reason != "" {
		details["reason"] = access.Reason
	}
	if access.CrossTenant() {
		action = auditDomain.ActionCrossTenantAccessed
		details["actor_tenant_id"] = access.ActorTenantID
	}

	_, err := e.audit.Append(ctx, &auditDomain.Entry{
		TenantID:     access.TenantID,
		Action:       action,
		ActorID:      auditDomain.ActorFromContext(ctx),
		ResourceType: access.ResourceType,
		ResourceID:   access.ResourceID,
		Details:      details,
	})
	if err != nil {
		e.logger.Error("refusing sensitive field access, audit append failed",
			slog.String("tenant_id", access.TenantID),
			slog.String("resource_id", access.ResourceID),
			slog.String("field", access.Field),
			slog.Any("error", err),
		)
		return "", err
	}

	return e.DecryptValue(ctx, access.TenantID, access.Value)
}

// NewEncryptionUseCase creates an EncryptionUseCase.
func NewEncryptionUseCase(
	keys cryptoUseCase.TenantKeyUseCase,
	aeadManager cryptoService.AEADManager,
	audit AuditAppender,
	logger *slog.Logger,
) EncryptionUseCase {
	return &encryptionUseCase{
		keys:        keys,
		aeadManager: aeadManager,
		audit:       audit,
		logger:      logger,
	}
}
