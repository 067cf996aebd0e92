package domain

// Algorithm represents the AEAD algorithm used to encrypt tenant data.
//
// Both algorithms use 256-bit keys, 12-byte nonces and 16-byte tags, so envelopes
// produced by either have the same layout.
type Algorithm string

const (
	// AESGCM represents AES-256-GCM. Preferred on CPUs with AES-NI.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents ChaCha20-Poly1305. Preferred where AES hardware
	// acceleration is unavailable.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the size in bytes of every DEK.
	KeySize = 32

	// NonceSize is the nonce size shared by both supported algorithms.
	NonceSize = 12

	// TagSize is the authentication tag size shared by both supported algorithms.
	TagSize = 16
)

// ParseAlgorithm converts a string into a supported Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM:
		return AESGCM, nil
	case ChaCha20:
		return ChaCha20, nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}
