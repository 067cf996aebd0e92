package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

// EncryptJSON marshals v and encrypts it for tenantID.
func EncryptJSON[T any](ctx context.Context, enc EncryptionUseCase, tenantID string, v T) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encrypt json: %w", err)
	}
	defer cryptoDomain.Zero(data)

	return enc.EncryptData(ctx, tenantID, data)
}

// DecryptJSON decrypts an envelope produced by EncryptJSON into a T.
func DecryptJSON[T any](ctx context.Context, enc EncryptionUseCase, tenantID, envelope string) (T, error) {
	var out T

	data, err := enc.DecryptData(ctx, tenantID, envelope)
	if err != nil {
		return out, err
	}
	defer cryptoDomain.Zero(data)

	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: invalid json payload", cryptoDomain.ErrDecryptionFailed)
	}
	return out, nil
}
