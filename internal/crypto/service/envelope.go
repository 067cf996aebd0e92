package service

import (
	"encoding/json"
	"fmt"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

// Encrypt seals plaintext with aead and returns the envelope string tagged with
// keyVersion. aad is authenticated but not stored.
func Encrypt(aead AEAD, keyVersion uint, plaintext, aad []byte) (string, error) {
	if keyVersion == 0 {
		return "", fmt.Errorf("encrypt: %w", cryptoDomain.ErrKeyVersionNotFound)
	}

	ciphertext, nonce, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	payload := make([]byte, 0, len(nonce)+len(ciphertext))
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)

	return cryptoDomain.Envelope{KeyVersion: keyVersion, Payload: payload}.String(), nil
}

// Decrypt opens an envelope produced by Encrypt. Malformed envelopes and tag
// failures both return ErrDecryptionFailed; no plaintext is ever returned on error.
func Decrypt(aead AEAD, envelope string, aad []byte) ([]byte, error) {
	env, err := cryptoDomain.ParseEnvelope(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cryptoDomain.ErrDecryptionFailed, err)
	}
	return DecryptEnvelope(aead, env, aad)
}

// DecryptEnvelope opens an already parsed envelope.
func DecryptEnvelope(aead AEAD, env cryptoDomain.Envelope, aad []byte) ([]byte, error) {
	plaintext, err := aead.Decrypt(env.Sealed(), env.Nonce(), aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}

// IsEncrypted reports whether value is a well-formed envelope.
func IsEncrypted(value string) bool {
	return cryptoDomain.IsEnvelope(value)
}

// IsTagged reports whether value claims to be an envelope. Callers deciding
// between the plaintext and ciphertext paths use this rather than IsEncrypted,
// so a damaged envelope fails instead of passing through as plaintext.
func IsTagged(value string) bool {
	return cryptoDomain.HasEnvelopeTag(value)
}

// EncryptJSON marshals v and encrypts the result. The envelope format does not
// depend on the shape of T.
func EncryptJSON[T any](aead AEAD, keyVersion uint, v T, aad []byte) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encrypt json: %w", err)
	}
	defer cryptoDomain.Zero(data)

	return Encrypt(aead, keyVersion, data, aad)
}

// DecryptJSON decrypts envelope and unmarshals the plaintext into a T.
func DecryptJSON[T any](aead AEAD, envelope string, aad []byte) (T, error) {
	var out T

	data, err := Decrypt(aead, envelope, aad)
	if err != nil {
		return out, err
	}
	defer cryptoDomain.Zero(data)

	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: invalid json payload", cryptoDomain.ErrDecryptionFailed)
	}
	return out, nil
}
