package config

import (
	"reflect"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

// Validator is implemented by configuration structs with cross-field rules.
// Validate runs after required-tag checks. A returned *sserr.Error is passed
// through unchanged; other errors are wrapped as CodeValidation.
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := checkRequired(rv, ""); err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, coded := sserr.AsError(err); coded {
		return err
	}
	return sserr.Wrap(err, sserr.CodeValidation, "config: validation failed")
}

// checkRequired reports the first zero field tagged required:"true", named
// by its dotted path such as "Store.Postgres.Host".
func checkRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		name := sf.Name
		if path != "" {
			name = path + "." + sf.Name
		}
		if field.Kind() == reflect.Struct {
			if err := checkRequired(field, name); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", name)
		}
	}
	return nil
}
