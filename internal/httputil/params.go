package httputil

import (
	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/casevault/internal/validation"
)

// TenantIDParam returns the validated :tenant_id path parameter.
func TenantIDParam(c *gin.Context) (string, error) {
	tenantID := c.Param("tenant_id")
	err := validation.Validate(tenantID,
		validation.Required,
		customValidation.TenantID,
	)
	if err != nil {
		return "", customValidation.WrapValidationError(validation.Errors{"tenant_id": err})
	}
	return tenantID, nil
}
