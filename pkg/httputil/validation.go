package httputil

import (
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/malipo/malipo-backend/pkg/errors"
)

var validate = validator.New()

// Validate checks struct tags and converts failures into a validation
// AppError whose details map field names to messages.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		// Struct(v) on a non-struct; a programming error, not a client one.
		return errors.Internal(err.Error())
	}

	details := make(map[string]string, len(fieldErrors))
	for _, e := range fieldErrors {
		details[e.Field()] = validationMessage(e)
	}
	return errors.Validation(details)
}

// validationMessage renders one field failure. For numeric fields the
// min/max params are values; for strings they are lengths.
func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min":
		if isNumeric(e.Kind()) {
			return "must be at least " + e.Param()
		}
		return "must be at least " + e.Param() + " characters"
	case "max":
		if isNumeric(e.Kind()) {
			return "must be at most " + e.Param()
		}
		return "must be at most " + e.Param() + " characters"
	default:
		return "invalid value"
	}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
