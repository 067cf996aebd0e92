// Package dto provides data transfer objects for the migration endpoints.
package dto

import (
	validation "github.com/jellydator/validation"
)

// RunMigrationRequest asks for every protected field of the tenant to be
// moved to NewVersion. OldVersion zero encrypts legacy plaintext.
type RunMigrationRequest struct {
	OldVersion uint `json:"old_version"`
	NewVersion uint `json:"new_version"`
}

// Validate checks if the run migration request is valid.
func (r *RunMigrationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.NewVersion,
			validation.Required,
		),
		validation.Field(&r.OldVersion,
			validation.By(r.validateOldVersion),
		),
	)
}

func (r *RunMigrationRequest) validateOldVersion(any) error {
	if r.NewVersion > 0 && r.OldVersion >= r.NewVersion {
		return validation.NewError("validation_old_version", "must be lower than new_version")
	}
	return nil
}
