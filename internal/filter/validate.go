package filter

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator. Field names in its errors are
// the JSON names so they can be reported to clients unchanged.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateStruct runs the struct tags on v and converts the first failure
// into a *ValidationError.
func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate filter: %w", err)
	}
	fe := fieldErrs[0]
	return &ValidationError{
		Field:  fieldName(fe.Namespace()),
		Value:  shortValue(fe.Value()),
		Reason: reasonFor(fe),
	}
}

// fieldName drops the struct type prefix from a validator namespace,
// "Raw.time_ranges[0]" becoming "time_ranges[0]".
func fieldName(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func shortValue(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 40 {
			return val[:40] + "..."
		}
		return val
	default:
		return ""
	}
}

func reasonFor(fe validator.FieldError) string {
	unit := "items"
	if fe.Kind() == reflect.String {
		unit = "characters"
	}
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("must have at most %s %s", fe.Param(), unit)
	case "len":
		return fmt.Sprintf("must have exactly %s %s", fe.Param(), unit)
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
