package config

import (
	"reflect"

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// Validator is an optional interface configuration structs may implement
// for checks the tags cannot express (port ranges, mutually exclusive
// fields). When the struct passed to [Loader.Load] implements it,
// Validate runs after the required-tag check succeeds.
//
// Errors that already are [*gwerr.Error] pass through unchanged; other
// errors are wrapped with [gwerr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			if _, isGWErr := gwerr.AsError(err); isGWErr {
				return err
			}
			return gwerr.Wrap(err, gwerr.CodeValidation,
				"config: custom validation failed")
		}
	}

	return nil
}

// validateRequired walks the struct and rejects any `required:"true"`
// field left zero-valued. path carries the dotted field path for the
// error message (e.g. "Database.Host").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") != "true" {
			continue
		}

		if field.IsZero() {
			return gwerr.Newf(gwerr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}

	return nil
}
