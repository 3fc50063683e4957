// Package config loads configuration for the speech gateway from struct
// tag defaults, an optional YAML or JSON file, and environment variables.
// Values resolve in priority order, highest last:
//
//	envDefault struct tags
//	YAML/JSON config file
//	Environment variables
//
// Defaults are baked into the code, a file provides per-environment
// overrides, and env vars (ConfigMaps, Secrets) take final precedence.
//
// Three struct tags control loading:
//
//   - `env:"VAR"` binds the field to an environment variable
//   - `envDefault:"value"` seeds the field when it is zero-valued
//   - `required:"true"` fails loading if the field stays zero
//
// Fields need `yaml` or `json` tags as well when file loading is used.
//
//	type ServerConfig struct {
//	    Host string `env:"HOST" envDefault:"0.0.0.0" yaml:"host"`
//	    Port int    `env:"PORT" envDefault:"8080" yaml:"port" required:"true"`
//	}
//
//	cfg := config.MustLoad[ServerConfig](
//	    config.New().WithEnvPrefix("GATEWAY").WithFile("gateway.yaml"),
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

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// durationType distinguishes time.Duration fields from plain int64 during
// traversal, since Duration's underlying kind is Int64.
var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration with the layered strategy described in
// the package comment. Build one with [New], customize it with
// [Loader.WithEnvPrefix] and [Loader.WithFile], then call [Loader.Load].
//
// A Loader is not safe for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
}

// New returns a Loader that reads environment variables only, with no
// prefix and no file.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prepends prefix (uppercased, joined with "_") to every
// environment variable name derived from an "env" tag. With prefix
// "GATEWAY", a field tagged `env:"PORT"` reads GATEWAY_PORT. An empty
// prefix disables prefixing.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets the path of an optional YAML (.yaml, .yml) or JSON
// (.json) configuration file. A missing file is not an error; an
// unrecognized extension is. The path must not contain "..".
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct.
// After resolution every field tagged `required:"true"` must be
// non-zero, and if the struct implements [Validator] its Validate
// method is called. Failures carry [gwerr.CodeInternalConfiguration],
// [gwerr.CodeValidationRequired], or [gwerr.CodeValidation].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return gwerr.New(gwerr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return gwerr.New(gwerr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	if err := applyEnv(rv, l.envPrefix); err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a zero value of T through loader and panics on failure.
// Intended for application startup, where an invalid configuration must
// stop the process.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return gwerr.New(gwerr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return gwerr.Wrapf(err, gwerr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return gwerr.Wrapf(err, gwerr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return gwerr.Wrapf(err, gwerr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return gwerr.Newf(gwerr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}

	return nil
}

// applyDefaults walks the struct and seeds zero-valued fields from their
// envDefault tags. Already-set fields are left alone.
func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}

		tag := sf.Tag.Get("envDefault")
		if tag == "" || !field.IsZero() {
			continue
		}

		if err := setField(field, tag); err != nil {
			return gwerr.Wrapf(err, gwerr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}

	return nil
}

// applyEnv walks the struct and overwrites fields from environment
// variables named by their "env" tags. A nested struct's own env tag
// joins the prefix with "_" for its children, so
//
//	Auth struct { JWKSURL string `env:"JWKS_URL"` } `env:"AUTH"`
//
// reads AUTH_JWKS_URL (plus any global prefix).
func applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := sf.Tag.Get("env")

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			nested := prefix
			if envTag != "" {
				if nested != "" {
					nested += "_" + envTag
				} else {
					nested = envTag
				}
			}
			if err := applyEnv(field, nested); err != nil {
				return err
			}
			continue
		}

		if envTag == "" {
			continue
		}

		key := envTag
		if prefix != "" {
			key = prefix + "_" + envTag
		}

		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}

		if err := setField(field, val); err != nil {
			return gwerr.Wrapf(err, gwerr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, key)
		}
	}

	return nil
}

// setField parses value into the field. Supported: string (including
// named string types such as postgres.Secret), bool, signed integers,
// time.Duration, and []string (comma-separated, trimmed).
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
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		// MakeSlice with the field's own type keeps named slice types
		// (type Origins []string) assignable.
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
