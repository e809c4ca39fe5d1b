// Package validation validates configuration and request structs through one
// shared validator instance.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every error returned from Struct.
var ErrInvalid = errors.New("validation failed")

// validate is safe for concurrent use once init has finished registering.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their config key or JSON name.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"koanf", "json"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" {
				return name
			}
		}
		return f.Name
	})

	if err := validate.RegisterValidation("no_null_bytes", noNullBytes); err != nil {
		panic(fmt.Sprintf("validation: register no_null_bytes: %v", err))
	}
}

// Struct validates s against its validate tags. All field failures are
// joined into one message.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, message(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(messages, "; "))
}

// path drops the root type name, e.g. "Config.models[far].url" becomes
// "models[far].url".
func path(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	field := path(fe)
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "no_null_bytes":
		return field + " must not contain NULL bytes"
	default:
		return field + " is invalid"
	}
}

func noNullBytes(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return true
	}
	return !strings.Contains(field.String(), "\x00")
}
