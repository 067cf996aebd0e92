// Package domain defines the core cryptographic domain models for per-tenant
// envelope encryption.
//
// Each tenant owns a chain of versioned Data Encryption Keys (DEKs). Every DEK is
// wrapped by a master key held in an external KMS and only the wrapped form is
// persisted. Exactly one version per tenant is active; retired versions are kept
// so older ciphertext stays readable and can be migrated.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TenantKey is one (tenant, version) row of the key chain.
//
// Versions are immutable once created. Rotation only flips IsActive to false and
// sets RotatedAt; the wrapped key material is never edited or deleted.
type TenantKey struct {
	ID          uuid.UUID  // Unique identifier (UUIDv7)
	TenantID    string     // Owning tenant
	Version     uint       // Monotonic version, starting at 1
	Algorithm   Algorithm  // AEAD used with this DEK
	MasterKeyID string     // Identifier of the KMS master key that wrapped the DEK
	WrappedKey  []byte     // DEK ciphertext produced by the KMS
	Key         []byte     // Plaintext DEK (populated after unwrap, never persisted)
	IsActive    bool       // Whether this version encrypts new data
	CreatedAt   time.Time  //
	RotatedAt   *time.Time // Nil while active
}

// Retired reports whether the version has been rotated out.
func (k *TenantKey) Retired() bool {
	return !k.IsActive && k.RotatedAt != nil
}

// RotationResult describes a completed key rotation.
type RotationResult struct {
	TenantID   string    `json:"tenant_id"`
	OldVersion uint      `json:"old_version"`
	NewVersion uint      `json:"new_version"`
	RotatedAt  time.Time `json:"rotated_at"`
}

// KeyVersionInfo is the non-secret view of a TenantKey exposed to operators.
type KeyVersionInfo struct {
	Version     uint       `json:"version"`
	Algorithm   Algorithm  `json:"algorithm"`
	MasterKeyID string     `json:"master_key_id"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	RotatedAt   *time.Time `json:"rotated_at,omitempty"`
}

// Info strips key material from the TenantKey.
func (k *TenantKey) Info() KeyVersionInfo {
	return KeyVersionInfo{
		Version:     k.Version,
		Algorithm:   k.Algorithm,
		MasterKeyID: k.MasterKeyID,
		IsActive:    k.IsActive,
		CreatedAt:   k.CreatedAt,
		RotatedAt:   k.RotatedAt,
	}
}

// Clone returns a deep copy so the caller may Wipe it independently.
func (k *TenantKey) Clone() *TenantKey {
	out := *k
	out.Key = append([]byte(nil), k.Key...)
	out.WrappedKey = append([]byte(nil), k.WrappedKey...)
	if k.RotatedAt != nil {
		rotatedAt := *k.RotatedAt
		out.RotatedAt = &rotatedAt
	}
	return &out
}
