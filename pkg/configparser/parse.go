package configparser

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

// ParseEnv fills the destination struct from environment variables using
// `env:"NAME"` tags with `default:"..."` fallbacks. Nested structs are
// walked recursively; fields without an env tag are left untouched.
func ParseEnv(dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer to struct")
	}
	return parseStruct(v.Elem())
}

func parseStruct(v reflect.Value) error {
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", v.Kind())
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		structField := t.Field(i)
		envName := structField.Tag.Get("env")

		// Recurse into nested config sections
		if field.Kind() == reflect.Struct && envName == "" && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := parseStruct(field); err != nil {
				return err
			}
			continue
		}

		if envName == "" {
			continue
		}

		value := os.Getenv(envName)
		if value == "" {
			value = structField.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(field, value); err != nil {
			return fmt.Errorf("field %s (%s): %w", structField.Name, envName, err)
		}
	}

	return nil
}

func setField(field reflect.Value, value string) error {
	// time.Duration before the generic int64 case
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float %q: %w", value, err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool %q: %w", value, err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}
