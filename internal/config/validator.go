package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags plus one
// cross-field rule: admin auth must configure at least one of the
// shared API key or the signed-token secret.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateAdminAuthConfigured(); err != nil {
		return err
	}
	return nil
}

// validateAdminAuthConfigured ensures the admin surface has something
// to check bearer credentials against.
func (c *Config) validateAdminAuthConfigured() error {
	if c.Auth.AdminAPIKeyHash == "" && c.Auth.AdminTokenSecret == "" {
		return errors.New("auth: at least one of admin_api_key_hash or admin_token_secret must be set")
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
