// Package usecase implements the encryption façade used by application code to
// protect tenant fields.
//
// The façade holds no key material of its own. Every call asks the key
// management use case for the DEK it needs and wipes its copy once the AEAD
// operation is done; the key cache behind that use case keeps the KMS out of
// the steady-state path.
//
// # Plaintext and Ciphertext
//
// Stored values are either legacy plaintext or envelopes tagged with
// "cvenc:v1:". The tag decides the path:
//   - untagged values are plaintext: EncryptValue encrypts them, DecryptValue
//     returns them unchanged
//   - tagged values are ciphertext: EncryptValue returns them unchanged,
//     DecryptValue opens them
//   - a tagged value that does not parse is damaged ciphertext and fails on
//     both paths with ErrInvalidEnvelope; it is never treated as plaintext
//
// # Tenant Binding
//
// The tenant ID is the AEAD associated data, so an envelope copied to another
// tenant fails authentication even if both tenants shared a key version number.
package usecase

import (
	"context"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
	encryptionDomain "github.com/allisson/casevault/internal/encryption/domain"
)

// AuditAppender records sensitive field accesses on the tenant ledger.
type AuditAppender interface {
	Append(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error)
}

// EncryptionUseCase encrypts and decrypts tenant values. Every ciphertext is
// bound to its tenant, so an envelope never opens under another tenant.
type EncryptionUseCase interface {
	// EncryptValue encrypts plaintext under the tenant's active key. A value
	// that is already an envelope is returned unchanged; a damaged envelope
	// fails with ErrInvalidEnvelope.
	EncryptValue(ctx context.Context, tenantID, plaintext string) (string, error)

	// DecryptValue opens an envelope with the key version it names. A value
	// without the envelope tag is returned unchanged; a damaged envelope fails
	// with ErrDecryptionFailed.
	DecryptValue(ctx context.Context, tenantID, value string) (string, error)

	// EncryptData encrypts arbitrary bytes under the tenant's active key.
	EncryptData(ctx context.Context, tenantID string, data []byte) (string, error)

	// DecryptData opens an envelope produced by EncryptData.
	DecryptData(ctx context.Context, tenantID, envelope string) ([]byte, error)

	// ReEncryptValue returns value protected under targetVersion. Envelopes
	// already under targetVersion are returned unchanged, other envelopes are
	// opened with their own version and plaintext is encrypted directly.
	ReEncryptValue(ctx context.Context, tenantID, value string, targetVersion uint) (string, error)

	// DecryptFields opens every field of a record independently.
	DecryptFields(ctx context.Context, tenantID string, fields map[string]string) map[string]encryptionDomain.FieldResult

	// AccessSensitiveField records the access on the audit ledger and then
	// decrypts the value. Nothing is returned when the ledger append fails.
	AccessSensitiveField(ctx context.Context, access *encryptionDomain.FieldAccess) (string, error)
}
