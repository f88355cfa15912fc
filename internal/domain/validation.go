package domain

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the stored gateway configuration against its field rules.
func (g *GatewayConfig) Validate() error {
	return structError(validate.Struct(g))
}

// Validate checks a merchant webhook endpoint registration.
func (c *ClientWebhookConfig) Validate() error {
	return structError(validate.Struct(c))
}

func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return WrapError(ErrorCodeValidationFailed, "validation failed", err).
			WithDetail("field", verrs[0].Field()).
			WithDetail("rule", verrs[0].Tag())
	}
	return WrapError(ErrorCodeValidationFailed, "validation failed", err)
}
