package validation

import (
	"encoding/base64"
	"fmt"

	validation "github.com/jellydator/validation"
)

// Base64Key validates standard base64 key material that decodes to at least
// minBytes bytes. Empty strings pass so Required decides on presence.
func Base64Key(minBytes int) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return validation.NewError("validation_base64_type", "must be a string")
		}
		if s == "" {
			return nil
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return validation.NewError("validation_base64", "must be valid base64-encoded data")
		}
		if len(decoded) < minBytes {
			return validation.NewError(
				"validation_key_size",
				fmt.Sprintf("must decode to at least %d bytes", minBytes),
			)
		}
		return nil
	})
}
