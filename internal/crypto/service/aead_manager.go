package service

import (
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

// cipherConstructors maps each supported algorithm to its constructor.
var cipherConstructors = map[cryptoDomain.Algorithm]func(key []byte) (AEAD, error){
	cryptoDomain.AESGCM: func(key []byte) (AEAD, error) {
		c, err := NewAESGCM(key)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	cryptoDomain.ChaCha20: func(key []byte) (AEAD, error) {
		c, err := NewChaCha20Poly1305(key)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
}

// AEADManagerService builds the cipher recorded on a TenantKey.
//
// The algorithm is stored with every key version, so envelopes sealed before
// a change of the default algorithm still open with the cipher they were
// sealed with.
type AEADManagerService struct{}

// NewAEADManager creates an AEADManagerService.
func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher builds the AEAD for one key version.
//
// Parameters:
//   - key: Unwrapped DEK of exactly KeySize bytes; the cipher keeps its own
//     expanded copy, so the caller may wipe key afterwards
//   - alg: cryptoDomain.AESGCM or cryptoDomain.ChaCha20
//
// Returns:
//   - The cipher
//   - ErrInvalidKeySize for a key of any other length
//   - ErrUnsupportedAlgorithm for an algorithm without a constructor
func (am *AEADManagerService) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	newCipher, ok := cipherConstructors[alg]
	if !ok {
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
	return newCipher(key)
}

// GenerateKey draws a fresh DEK from crypto/rand.
func GenerateKey() ([]byte, error) {
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
