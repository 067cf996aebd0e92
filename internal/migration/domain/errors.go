package domain

import (
	"github.com/allisson/casevault/internal/errors"
)

// Migration error definitions.
var (
	// ErrInvalidTenantID indicates an empty tenant identifier.
	ErrInvalidTenantID = errors.Wrap(errors.ErrInvalidInput, "invalid tenant id")

	// ErrInvalidVersions indicates a target version of zero or a source version not below it.
	ErrInvalidVersions = errors.Wrap(errors.ErrInvalidInput, "invalid migration versions")

	// ErrCheckpointNotFound indicates no checkpoint was stored for the collection.
	ErrCheckpointNotFound = errors.Wrap(errors.ErrNotFound, "migration checkpoint not found")

	// ErrInvalidCollection indicates a collection definition with an unsafe identifier
	// or no protected fields.
	ErrInvalidCollection = errors.Wrap(errors.ErrInvalidInput, "invalid record collection")

	// ErrMalformedEnvelope indicates a field carrying the envelope prefix that does not parse.
	ErrMalformedEnvelope = errors.Wrap(errors.ErrInvalidInput, "malformed envelope in protected field")
)
