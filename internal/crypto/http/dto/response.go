// Package dto provides data transfer objects for the key management endpoints.
package dto

import (
	"time"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

// KeyVersionResponse is the non-secret view of one tenant key version.
type KeyVersionResponse struct {
	Version     uint       `json:"version"`
	Algorithm   string     `json:"algorithm"`
	MasterKeyID string     `json:"master_key_id"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	RotatedAt   *time.Time `json:"rotated_at,omitempty"`
}

// ListKeyVersionsResponse lists every key version of a tenant, newest first.
type ListKeyVersionsResponse struct {
	TenantID      string               `json:"tenant_id"`
	ActiveVersion uint                 `json:"active_version,omitempty"`
	Versions      []KeyVersionResponse `json:"versions"`
}

// RotateKeyResponse reports a completed rotation.
type RotateKeyResponse struct {
	TenantID   string    `json:"tenant_id"`
	OldVersion uint      `json:"old_version"`
	NewVersion uint      `json:"new_version"`
	RotatedAt  time.Time `json:"rotated_at"`
}

// MapKeyVersionsToResponse builds the list response. ActiveVersion is left
// zero when no version is active.
func MapKeyVersionsToResponse(tenantID string, versions []cryptoDomain.KeyVersionInfo) ListKeyVersionsResponse {
	response := ListKeyVersionsResponse{
		TenantID: tenantID,
		Versions: make([]KeyVersionResponse, 0, len(versions)),
	}
	for _, v := range versions {
		if v.IsActive {
			response.ActiveVersion = v.Version
		}
		response.Versions = append(response.Versions, KeyVersionResponse{
			Version:     v.Version,
			Algorithm:   string(v.Algorithm),
			MasterKeyID: v.MasterKeyID,
			IsActive:    v.IsActive,
			CreatedAt:   v.CreatedAt,
			RotatedAt:   v.RotatedAt,
		})
	}
	return response
}

// MapRotationToResponse converts a RotationResult.
func MapRotationToResponse(result *cryptoDomain.RotationResult) RotateKeyResponse {
	return RotateKeyResponse{
		TenantID:   result.TenantID,
		OldVersion: result.OldVersion,
		NewVersion: result.NewVersion,
		RotatedAt:  result.RotatedAt,
	}
}
