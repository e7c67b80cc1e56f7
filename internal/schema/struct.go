package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/constructhq/construct/internal/errs"
	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. validator.Validate is safe for
// concurrent use and caches struct metadata, so one instance serves all
// schemas in the process.
var validate = validator.New()

// structSchema validates an input value by decoding it into T and running
// validator tags declared on T's fields.
type structSchema[T any] struct{}

// Struct returns a Schema backed by the validator tags on T.
//
// Typical pattern:
//   - Define a payload struct with validator tags (`validate:"required,email"`)
//   - Attach Struct[CreateUserInput]() to the construct's body schema
//
// On success, Validate returns a *T.
func Struct[T any]() Schema {
	return structSchema[T]{}
}

func (structSchema[T]) Validate(value any) (any, []errs.Issue) {
	target := new(T)

	if issue := decodeInto(value, target); issue != nil {
		return nil, []errs.Issue{*issue}
	}

	if err := validate.Struct(target); err != nil {
		return nil, extractIssues(err)
	}

	return target, nil
}

// extractIssues converts validator errors into client-facing issues.
func extractIssues(err error) []errs.Issue {
	var issues []errs.Issue

	// validator.ValidationErrors is returned when struct tag validation fails.
	// Anything else (e.g. an InvalidValidationError for non-struct input) is
	// reported as a single opaque issue.
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []errs.Issue{{Path: "", Message: "value is not validatable"}}
	}

	// Convert validator.ValidationErrors into user-friendly messages.
	for _, fieldErr := range validationErrors {
		field := strings.ToLower(fieldErr.Field())
		var msg string

		switch fieldErr.Tag() {
		case "required":
			msg = "is required"

		case "min":
			// min tag means:
			// - for strings: minimum length
			// - for numbers: minimum value
			if fieldErr.Type().Kind() == reflect.String {
				msg = fmt.Sprintf("must be at least %s characters", fieldErr.Param())
			} else {
				msg = fmt.Sprintf("must be at least %s", fieldErr.Param())
			}

		case "max":
			if fieldErr.Type().Kind() == reflect.String {
				msg = fmt.Sprintf("must not exceed %s characters", fieldErr.Param())
			} else {
				msg = fmt.Sprintf("must not exceed %s", fieldErr.Param())
			}

		case "oneof":
			msg = fmt.Sprintf("must be one of: %s", fieldErr.Param())

		case "email":
			msg = "must be a valid email address"

		case "e164":
			msg = "must be a valid phone number with country code"

		case "uuid":
			msg = "must be a valid UUID"

		case "dive":
			// dive is used when validating slices/arrays and one of the
			// nested items fails.
			msg = "some items are invalid"

		default:
			// Fallback for tags not handled above. Includes tag name and
			// param (if any) to help debugging.
			if fieldErr.Param() != "" {
				msg = fmt.Sprintf("%s: %s:%s", field, fieldErr.Tag(), fieldErr.Param())
			} else {
				msg = fmt.Sprintf("%s: %s", field, fieldErr.Tag())
			}
		}

		issues = append(issues, errs.Issue{
			Path:    field,
			Message: msg,
		})
	}

	return issues
}
