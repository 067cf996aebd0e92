// Package domain defines the types exchanged with the encryption façade.
package domain

import "github.com/allisson/casevault/internal/errors"

// FieldUnavailableMessage replaces a protected value that could not be opened.
const FieldUnavailableMessage = "field unavailable, contact support"

// ErrInvalidFieldAccess indicates a sensitive field access request missing required fields.
var ErrInvalidFieldAccess = errors.Wrap(errors.ErrInvalidInput, "invalid field access")

// FieldResult is the outcome of opening one field of a record. A failed field
// degrades to FieldUnavailableMessage without failing its siblings.
type FieldResult struct {
	Value       string `json:"value"`
	Unavailable bool   `json:"unavailable"`
	Error       error  `json:"-"`
}

// FieldAccess describes a read of a sensitive field that must be audited.
type FieldAccess struct {
	// TenantID owns the record.
	TenantID string
	// ActorTenantID is the tenant of the principal reading the field. A value
	// different from TenantID records a cross-tenant access.
	ActorTenantID string
	ResourceType  string
	ResourceID    string
	Field         string
	// Value is the stored, possibly encrypted, field value.
	Value  string
	Reason string
}

// Validate checks the required fields of an access request.
func (f *FieldAccess) Validate() error {
	if f.TenantID == "" || f.ResourceType == "" || f.ResourceID == "" || f.Field == "" {
		return ErrInvalidFieldAccess
	}
	return nil
}

// CrossTenant reports whether the reader belongs to another tenant.
func (f *FieldAccess) CrossTenant() bool {
	return f.ActorTenantID != "" && f.ActorTenantID != f.TenantID
}
