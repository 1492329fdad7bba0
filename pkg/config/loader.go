// Package config loads tokengate configuration structs from three layers,
// lowest priority first:
//
//	envDefault struct tags
//	a YAML or JSON file
//	environment variables
//
// Struct tags:
//
//   - `env:"NAME"` binds a field to an environment variable. On a nested
//     struct the tag becomes a prefix for the children, so a Redis block
//     tagged `env:"REDIS"` exposes its `env:"ADDR"` field as REDIS_ADDR.
//   - `envDefault:"value"` is applied while the field is still zero.
//   - `required:"true"` fails loading if the field is zero afterwards.
//
// File loading relies on the `yaml` and `json` tags of the target struct.
//
//	cfg := config.MustLoad[ServerConfig](
//	    config.New().WithEnvPrefix("TOKENGATE").WithFile("tokengate.yaml"),
//	)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves a configuration struct. It is not safe for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
}

// New returns a Loader that reads environment variables only.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prepends PREFIX_ to every environment variable name. The
// prefix is upper-cased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets an optional .yaml, .yml or .json file. A missing file is
// skipped. Paths containing ".." are rejected at load time.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, then checks
// required fields and calls Validate when cfg implements [Validator].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	err := walkFields(rv, "", func(field reflect.Value, sf reflect.StructField, _ string) error {
		def, ok := sf.Tag.Lookup("envDefault")
		if !ok || !field.IsZero() {
			return nil
		}
		if err := setField(field, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: invalid default for field %q", sf.Name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	err = walkFields(rv, l.envPrefix, func(field reflect.Value, sf reflect.StructField, envKey string) error {
		if envKey == "" {
			return nil
		}
		val, ok := os.LookupEnv(envKey)
		if !ok {
			return nil
		}
		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: invalid value for %s", envKey)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Intended for process start-up.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain \"..\"")
	}

	data, err := os.ReadFile(l.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read %q", l.filePath)
	}

	var unmarshal func([]byte, any) error
	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = json.Unmarshal
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q", ext)
	}
	if err := unmarshal(data, cfg); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse %q", l.filePath)
	}
	return nil
}

// walkFields visits every settable leaf field of rv depth-first. envKey is
// the fully prefixed environment variable name, or "" for untagged fields.
func walkFields(rv reflect.Value, prefix string, visit func(reflect.Value, reflect.StructField, string) error) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		tag := sf.Tag.Get("env")

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := walkFields(field, joinKey(prefix, tag), visit); err != nil {
				return err
			}
			continue
		}

		var envKey string
		if tag != "" {
			envKey = joinKey(prefix, tag)
		}
		if err := visit(field, sf, envKey); err != nil {
			return err
		}
	}
	return nil
}

func joinKey(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

// setField parses value into field. Supported kinds: string-based types,
// bool, signed integers, time.Duration and comma-separated string slices.
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
