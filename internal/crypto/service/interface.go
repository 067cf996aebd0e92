// Package service provides the cryptographic primitives used for per-tenant
// envelope encryption: AEAD ciphers, the envelope codec, KMS key wrapping and
// the DEK cache.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyWrapper wraps and unwraps DEKs with the KMS-held master key. The master
// key itself never leaves the KMS.
type KeyWrapper interface {
	// KeyID returns the master key identifier recorded on new TenantKey rows.
	KeyID() string

	// WrapKey encrypts plaintext key material under the master key.
	WrapKey(ctx context.Context, dek []byte) ([]byte, error)

	// UnwrapKey decrypts key material previously produced by WrapKey.
	UnwrapKey(ctx context.Context, wrapped []byte) ([]byte, error)

	// DescribeKey reports whether the master key is usable.
	DescribeKey(ctx context.Context) (cryptoDomain.KMSKeyInfo, error)
}

// KeyCache holds unwrapped DEKs so that steady-state encrypt and decrypt calls
// skip the KMS. Implementations must return copies so callers can wipe them
// independently of eviction.
type KeyCache interface {
	// Get returns the active version of tenantID.
	Get(tenantID string) (*cryptoDomain.TenantKey, bool)

	// Set stores the active version, replacing the previous one.
	Set(key *cryptoDomain.TenantKey)

	// GetVersion returns a retired version of tenantID.
	GetVersion(tenantID string, version uint) (*cryptoDomain.TenantKey, bool)

	// SetVersion stores a retired version.
	SetVersion(key *cryptoDomain.TenantKey)

	// Invalidate drops every cached version of tenantID.
	Invalidate(tenantID string)

	// Purge drops every entry.
	Purge()
}
