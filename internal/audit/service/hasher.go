package service

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// HashAlgorithm names a ledger digest. It is also the tag prefixed to every
// stored hash.
type HashAlgorithm string

// Supported ledger digests. SHA256 is the default.
const (
	SHA256 HashAlgorithm = "sha256"
	BLAKE3 HashAlgorithm = "blake3"
)

// ParseHashAlgorithm validates a configured algorithm name.
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	switch alg := HashAlgorithm(name); alg {
	case SHA256, BLAKE3:
		return alg, nil
	default:
		return "", auditDomain.ErrUnsupportedHashAlgorithm
	}
}

// new returns a fresh digest state for the algorithm.
func (a HashAlgorithm) new() hash.Hash {
	if a == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// chainHasher hashes new entries with one algorithm and recomputes stored
// entries with the algorithm named in their hash tag, so switching
// AUDIT_HASH_ALGORITHM does not invalidate existing chains.
type chainHasher struct {
	alg HashAlgorithm
}

// NewHasher creates a Hasher producing digests tagged "<alg>:<hex>".
func NewHasher(alg HashAlgorithm) (Hasher, error) {
	if _, err := ParseHashAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	return &chainHasher{alg: alg}, nil
}

// Algorithm returns the digest used for new entries.
func (h *chainHasher) Algorithm() HashAlgorithm {
	return h.alg
}

// Hash computes the tagged digest of entry with the configured algorithm.
// entry.PreviousHash must already be set.
func (h *chainHasher) Hash(entry *auditDomain.Entry) string {
	return digest(h.alg, entry)
}

// Recompute computes the digest of a stored entry with the algorithm named in
// its hash tag. An untagged or unknown tag falls back to the configured
// algorithm, which then reports the entry as a hash mismatch.
func (h *chainHasher) Recompute(entry *auditDomain.Entry) string {
	alg := h.alg
	if tag, _, ok := strings.Cut(entry.Hash, ":"); ok {
		if parsed, err := ParseHashAlgorithm(tag); err == nil {
			alg = parsed
		}
	}
	return digest(alg, entry)
}

// digest hashes the canonical form of entry and returns "<alg>:<hex>".
func digest(alg HashAlgorithm, entry *auditDomain.Entry) string {
	d := alg.new()
	d.Write(canonicalizeEntry(entry))
	return string(alg) + ":" + hex.EncodeToString(d.Sum(nil))
}

// canonicalizeEntry converts an entry to the byte representation that is hashed.
// Format: id || tenant || sequence || action || actor || resource_type ||
// resource_id || details || created_at || previous_hash
// Variable-length fields are length-prefixed and details are sorted by key.
// Locked and LockedAt are excluded.
func canonicalizeEntry(e *auditDomain.Entry) []byte {
	buf := make([]byte, 0, 512)

	buf = append(buf, e.ID[:]...)
	buf = appendLengthPrefixed(buf, e.TenantID)
	buf = binary.BigEndian.AppendUint64(buf, e.Sequence)
	buf = appendLengthPrefixed(buf, string(e.Action))
	buf = appendLengthPrefixed(buf, e.ActorID)
	buf = appendLengthPrefixed(buf, e.ResourceType)
	buf = appendLengthPrefixed(buf, e.ResourceID)

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = appendLengthPrefixed(buf, k)
		buf = appendLengthPrefixed(buf, e.Details[k])
	}

	buf = binary.BigEndian.AppendUint64(buf, uint64(e.CreatedAt.UTC().UnixMicro()))
	buf = appendLengthPrefixed(buf, e.PreviousHash)

	return buf
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by s.
func appendLengthPrefixed(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
