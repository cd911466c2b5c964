package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPrefix is prepended to every variable name unless overridden.
const DefaultPrefix = "SIGNIN_"

// ErrNotStructPointer is returned when Load receives anything but a pointer to a struct.
var ErrNotStructPointer = errors.New("config: target must be a pointer to a struct")

// LoadOptions defines options for loading configuration from environment variables.
type LoadOptions struct {
	Prefix string   // Prefix to prepend to environment variable names (default: "SIGNIN_")
	Files  []string // .env files to read before the environment; missing files are ignored
	Debug  bool     // Print resolved variables (secrets masked)
}

// Option customizes LoadOptions.
type Option func(*LoadOptions)

// WithPrefix overrides the variable name prefix. An empty prefix reads names as-is.
func WithPrefix(prefix string) Option {
	return func(o *LoadOptions) { o.Prefix = prefix }
}

// WithFiles sets the .env files consulted before the process environment.
func WithFiles(files ...string) Option {
	return func(o *LoadOptions) { o.Files = files }
}

// WithDebug prints every resolved variable while loading.
func WithDebug() Option {
	return func(o *LoadOptions) { o.Debug = true }
}

// MissingError reports required variables that were not set.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "config: required variables not set: " + strings.Join(e.Names, ", ")
}

// Load populates a struct from .env files and environment variables using reflection.
//
// Field tags:
//   - `env:"VAR_NAME"`: maps the field to the variable PREFIX+VAR_NAME
//   - `env:"VAR_NAME,default:value"`: value used when the variable is unset
//   - `env:"VAR_NAME,required"`: Load fails with *MissingError when unset
//   - `envDefault:"value"`: alternative spelling of the default
//
// Untagged struct fields are walked recursively so that package configs can be
// embedded in an application config.
//
// Example:
//
//	type Config struct {
//	    BaseURL string        `env:"BASE_URL,required"`
//	    Port    int           `env:"PORT,default:8080"`
//	    Timeout time.Duration `env:"TIMEOUT,default:10s"`
//	}
//
//	var cfg Config
//	err := config.Load(&cfg, config.WithPrefix("MYAPP_"))
//	// Will look for MYAPP_BASE_URL, MYAPP_PORT, MYAPP_TIMEOUT
func Load(cfg interface{}, opts ...Option) error {
	options := LoadOptions{Prefix: DefaultPrefix, Files: []string{".env"}}
	for _, opt := range opts {
		opt(&options)
	}
	if os.Getenv("SIGNIN_CONFIG_DEBUG") == "true" {
		options.Debug = true
	}

	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStructPointer
	}

	for _, file := range options.Files {
		// godotenv never overrides variables already present in the environment
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}

	var missing []string
	if err := loadStruct(rv.Elem(), options, &missing); err != nil {
		return err
	}
	if len(missing) > 0 {
		return &MissingError{Names: missing}
	}
	return nil
}

func loadStruct(v reflect.Value, options LoadOptions, missing *[]string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		envTag := field.Tag.Get("env")
		if envTag == "" {
			if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
				if err := loadStruct(v.Field(i), options, missing); err != nil {
					return err
				}
			}
			continue
		}

		parts := strings.Split(envTag, ",")
		envName := parts[0]
		defaultValue, hasDefault := field.Tag.Lookup("envDefault")
		required := false

		for _, part := range parts[1:] {
			switch {
			case strings.HasPrefix(part, "default:"):
				defaultValue = strings.TrimPrefix(part, "default:")
				hasDefault = true
			case part == "required":
				required = true
			}
		}

		fullEnvName := options.Prefix + envName
		value, ok := os.LookupEnv(fullEnvName)
		if !ok || value == "" {
			value = defaultValue
		}
		if value == "" && required && !hasDefault {
			*missing = append(*missing, fullEnvName)
			continue
		}
		if options.Debug {
			fmt.Printf("[SIGNIN] %s=%s\n", fullEnvName, mask(fullEnvName, value))
		}

		if value != "" {
			if err := setFieldValue(v.Field(i), value); err != nil {
				return fmt.Errorf("config: %s: %w", fullEnvName, err)
			}
		}
	}
	return nil
}

func mask(name, value string) string {
	upper := strings.ToUpper(name)
	for _, marker := range []string{"SECRET", "KEY", "PASSWORD", "TOKEN"} {
		if strings.Contains(upper, marker) && value != "" {
			return "****"
		}
	}
	return value
}

// setFieldValue converts a variable value to the field's type.
//
// Supported types: string, int/int64, bool, time.Duration and []string
// (comma separated, blanks dropped). Other types are skipped silently.
func setFieldValue(field reflect.Value, value string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return nil
	}
	return nil
}
