package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// EnvelopePrefix tags every protected value. The format version is part of the
// tag so a future layout can coexist with this one.
const EnvelopePrefix = "cvenc:v1:"

// minEnvelopePayload is nonce plus tag: the smallest valid payload (empty plaintext).
const minEnvelopePayload = NonceSize + TagSize

// Envelope is the storage representation of a protected value:
//
//	cvenc:v1:<keyVersion>:<base64url(nonce || ciphertext || tag)>
//
// The key version tells readers which TenantKey opens the payload, which keeps
// ciphertext readable across rotations and lets migrations skip values that are
// already under the target version.
type Envelope struct {
	KeyVersion uint
	Payload    []byte // nonce || ciphertext || tag
}

// String renders the envelope in its storage form.
func (e Envelope) String() string {
	var b strings.Builder
	b.Grow(len(EnvelopePrefix) + 12 + base64.RawURLEncoding.EncodedLen(len(e.Payload)))
	b.WriteString(EnvelopePrefix)
	b.WriteString(strconv.FormatUint(uint64(e.KeyVersion), 10))
	b.WriteByte(':')
	b.WriteString(base64.RawURLEncoding.EncodeToString(e.Payload))
	return b.String()
}

// Nonce returns the nonce portion of the payload.
func (e Envelope) Nonce() []byte {
	return e.Payload[:NonceSize]
}

// Sealed returns ciphertext || tag.
func (e Envelope) Sealed() []byte {
	return e.Payload[NonceSize:]
}

// ParseEnvelope parses the storage form. Any deviation from the exact layout
// returns ErrInvalidEnvelope.
func ParseEnvelope(s string) (Envelope, error) {
	rest, ok := strings.CutPrefix(s, EnvelopePrefix)
	if !ok {
		return Envelope{}, ErrInvalidEnvelope
	}

	versionPart, payloadPart, ok := strings.Cut(rest, ":")
	if !ok || versionPart == "" || payloadPart == "" {
		return Envelope{}, ErrInvalidEnvelope
	}

	// Reject signs, leading zeros and anything strconv would otherwise tolerate.
	if versionPart[0] == '0' {
		return Envelope{}, ErrInvalidEnvelope
	}
	version, err := strconv.ParseUint(versionPart, 10, 32)
	if err != nil || version == 0 {
		return Envelope{}, ErrInvalidEnvelope
	}

	payload, err := base64.RawURLEncoding.Strict().DecodeString(payloadPart)
	if err != nil || len(payload) < minEnvelopePayload {
		return Envelope{}, ErrInvalidEnvelope
	}

	return Envelope{KeyVersion: uint(version), Payload: payload}, nil
}

// HasEnvelopeTag reports whether s carries the envelope tag. The tag is
// authoritative: a tagged value that fails to parse is a damaged envelope, not
// plaintext.
func HasEnvelopeTag(s string) bool {
	return strings.HasPrefix(s, EnvelopePrefix)
}

// IsEnvelope reports whether s is a well-formed envelope. Ordinary text and
// JSON never match because the tag, a decimal version and a base64url payload
// of at least nonce-plus-tag length must all be present.
func IsEnvelope(s string) bool {
	if !HasEnvelopeTag(s) {
		return false
	}
	_, err := ParseEnvelope(s)
	return err == nil
}

// EnvelopeVersion returns the key version of s without decoding the payload
// beyond validation.
func EnvelopeVersion(s string) (uint, error) {
	env, err := ParseEnvelope(s)
	if err != nil {
		return 0, fmt.Errorf("reading envelope version: %w", err)
	}
	return env.KeyVersion, nil
}
