// internal/utils/validator.go
package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("strong_password", validateStrongPassword)
	v.RegisterValidation("username", validateUsername)
	return v
}

// ValidateStruct runs the shared validator against a tagged request struct.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// strong_password: at least 8 characters mixing upper, lower, digit and a
// punctuation or symbol character.
func validateStrongPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < 8 {
		return false
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsNumber(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && lower && digit && special
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// username: 3-50 characters, letters, digits and underscores only.
func validateUsername(fl validator.FieldLevel) bool {
	username := fl.Field().String()
	if len(username) < 3 || len(username) > 50 {
		return false
	}
	return usernamePattern.MatchString(username)
}

// ValidationError is the per-field shape returned to API clients.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// GetValidationErrors flattens a validator error into client-facing entries.
// Non-validation errors yield an empty slice.
func GetValidationErrors(err error) []ValidationError {
	var out []ValidationError
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return out
	}
	for _, e := range fieldErrs {
		out = append(out, ValidationError{
			Field:   strings.ToLower(e.Field()),
			Tag:     e.Tag(),
			Message: messageFor(e),
		})
	}
	return out
}

func messageFor(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
	case "strong_password":
		return "Password needs 8+ characters with an uppercase letter, a lowercase letter, a number and a special character"
	case "username":
		return "Username must be 3-50 characters of letters, numbers and underscores"
	default:
		return e.Field() + " is invalid"
	}
}
