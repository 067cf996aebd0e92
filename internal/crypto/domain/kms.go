package domain

import "context"

// KMSKeeper is the subset of *secrets.Keeper used to wrap and unwrap DEKs.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KMSKeyInfo is the result of a describeKey health check.
type KMSKeyInfo struct {
	KeyID   string `json:"key_id"`
	Enabled bool   `json:"enabled"`
}
