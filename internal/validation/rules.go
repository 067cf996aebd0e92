// Package validation provides custom validation rules for the application.
package validation

import (
	"net/url"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/casevault/internal/errors"
)

// tenantIDRegex bounds tenant IDs to 255 characters that are safe in URLs,
// log fields and archive object keys.
var tenantIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,254}$`)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// TenantID validates the identifier format accepted for tenants: up to 255
// characters of letters, digits, dot, underscore, colon and hyphen, starting
// with a letter or digit.
var TenantID = validation.NewStringRuleWithError(
	func(s string) bool {
		return tenantIDRegex.MatchString(s)
	},
	validation.NewError("validation_tenant_id", "must be a valid tenant identifier"),
)

// WebhookURL validates an absolute http(s) URL with a host.
var WebhookURL = validation.NewStringRuleWithError(
	func(s string) bool {
		u, err := url.Parse(s)
		if err != nil {
			return false
		}
		return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
	},
	validation.NewError("validation_webhook_url", "must be an absolute http or https URL"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
