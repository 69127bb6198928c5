package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

var validate = validator.New()

// fieldOptions maps struct fields to the option names users set.
var fieldOptions = map[string]string{
	"ServiceRole":     OptServiceType,
	"Channel":         OptChannel,
	"Proxy":           OptProxy,
	"PayloadLocation": OptPayload,
}

// Validate reports structural problems with the configuration. The result is
// advisory: an invalid config is still reconciled with its safe fallbacks.
func (c ServiceConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var out ValidationErrors
	for _, fe := range fieldErrs {
		field := fe.Field()
		if opt, ok := fieldOptions[field]; ok {
			field = opt
		}
		out.Add(field, describeTag(fe), fe.Value())
	}
	return out
}

// ValidateForRender checks what rendering the settings file needs.
func (c ServiceConfig) ValidateForRender() error {
	var out ValidationErrors
	if strings.TrimSpace(c.KeystoreSecret) == "" {
		out.Add(OptKeystoreSecret, "is required to render the service settings")
	}
	if !c.ServiceRole.Valid() {
		out.Add(OptServiceType, "must be one of: admin, signing, system-user", string(c.ServiceRole))
	}
	if out.HasErrors() {
		return out
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "must be a valid URL"
	case "uri":
		return "must be a valid URI"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
