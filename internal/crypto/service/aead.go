package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// aeadCipher adapts a cipher.AEAD to the AEAD interface, drawing a fresh random
// nonce for every Encrypt call. Safe for concurrent use.
type aeadCipher struct {
	aead cipher.AEAD
}

// Encrypt seals plaintext under a nonce drawn from crypto/rand. The returned
// ciphertext has the authentication tag appended.
func (a *aeadCipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = a.aead.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext. A wrong key, nonce, AAD or any modified byte
// fails authentication and returns an error without partial plaintext.
func (a *aeadCipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != a.aead.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// AESGCMCipher implements AEAD using AES-256-GCM.
//
// Properties:
//   - 32-byte key
//   - 12-byte random nonce per Encrypt
//   - 16-byte tag appended to the ciphertext
//   - Hardware accelerated where the CPU has AES instructions
//
// Random 96-bit nonces keep the collision probability negligible for well
// over a billion messages per key; rotation bounds the count per key.
//
// Example:
//
//	aead, err := NewAESGCM(dek)
//	if err != nil {
//	    return err
//	}
//	ciphertext, nonce, err := aead.Encrypt([]byte("123-45-6789"), []byte("tenant-a"))
//	plaintext, err := aead.Decrypt(ciphertext, nonce, []byte("tenant-a"))
type AESGCMCipher struct {
	aeadCipher
}

// NewAESGCM creates an AES-256-GCM cipher.
//
// Parameters:
//   - key: Exactly 32 bytes of key material
//
// Returns:
//   - The cipher, safe for concurrent use
//   - An error for any other key size
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != 32 {
		return nil, errors.New("key must be exactly 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aeadCipher{aead: gcm}}, nil
}

// ChaCha20Poly1305Cipher implements AEAD using ChaCha20-Poly1305 (RFC 8439).
//
// Properties:
//   - 32-byte key
//   - 12-byte random nonce per Encrypt
//   - 16-byte tag appended to the ciphertext
//   - Constant-time in software, the better choice without AES instructions
type ChaCha20Poly1305Cipher struct {
	aeadCipher
}

// NewChaCha20Poly1305 creates a ChaCha20-Poly1305 cipher. The key must be exactly 32 bytes.
func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &ChaCha20Poly1305Cipher{aeadCipher{aead: aead}}, nil
}
