// Package validation wraps go-playground/validator for request DTOs. Field
// names in messages follow the json tags, so clients see the names they sent.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	dErrors "warden/pkg/domain-errors"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("accountid", func(fl validator.FieldLevel) bool {
		return isAccountID(fl.Field().String())
	})
	return v
}

// isAccountID accepts printable identifiers without inner whitespace.
func isAccountID(id string) bool {
	for _, r := range id {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// Validate checks req against its validate tags and reports the first
// failure as a CodeValidation domain error.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}

	fe := fieldErrs[0]
	field := fe.Field()
	if field == "" {
		return "invalid request body"
	}
	switch fe.ActualTag() {
	case "required":
		return field + " is required"
	case "notblank":
		return field + " must not be blank"
	case "accountid":
		return field + " must not contain whitespace or control characters"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
