package domain

import (
	"github.com/allisson/casevault/internal/errors"
)

// Cryptographic and key management error definitions.
//
// These wrap the standard errors from internal/errors so the HTTP layer can map
// them to status codes without knowing about the crypto domain.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a DEK is not exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates the authentication tag did not verify.
	//
	// The cause (wrong key, corrupted data, version mismatch) is deliberately not
	// disclosed. It is always surfaced to the caller and never replaced with a
	// default value.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrInvalidEnvelope indicates a value that claims to be an envelope but is malformed.
	ErrInvalidEnvelope = errors.Wrap(errors.ErrInvalidInput, "invalid envelope")

	// ErrKeyNotFound indicates the tenant has no key yet and creation was not requested.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "tenant key not found")

	// ErrKeyVersionNotFound indicates the requested key version does not exist for the tenant.
	ErrKeyVersionNotFound = errors.Wrap(errors.ErrNotFound, "tenant key version not found")

	// ErrKeyAlreadyExists indicates a concurrent writer created the same tenant key version.
	ErrKeyAlreadyExists = errors.Wrap(errors.ErrConflict, "tenant key version already exists")

	// ErrKMSUnavailable indicates the external KMS could not be reached.
	// Transient: callers may retry with backoff. Never falls back to an unwrapped key.
	ErrKMSUnavailable = errors.Wrap(errors.ErrUnavailable, "kms unavailable")

	// ErrKMSKeyDisabled indicates the master key is disabled or access was revoked.
	// Fatal for the tenant's crypto operations until an operator resolves it.
	ErrKMSKeyDisabled = errors.Wrap(errors.ErrLocked, "kms key disabled")

	// ErrKeyManagementDisabled indicates the KMS integration is switched off by
	// configuration. Key management fails closed rather than operating unencrypted.
	ErrKeyManagementDisabled = errors.Wrap(errors.ErrUnavailable, "key management disabled")

	// ErrRotationTooSoon indicates the active version is younger than the rotation grace period.
	ErrRotationTooSoon = errors.Wrap(errors.ErrConflict, "key rotated too recently")

	// ErrInvalidTenantID indicates an empty tenant identifier.
	ErrInvalidTenantID = errors.Wrap(errors.ErrInvalidInput, "invalid tenant id")
)
