// Configuration feeders for reading orchestrator settings from YAML or TOML
// files and from environment variables.
package conductor

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every env tag when reading overrides, e.g. the
// field tagged `env:"START_TIMEOUT"` reads CONDUCTOR_START_TIMEOUT.
const envPrefix = "CONDUCTOR"

// LoadConfig reads a config file (YAML or TOML, selected by extension),
// applies environment variable overrides, and fills any remaining zero
// fields with defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, ErrConfigPathEmpty
	}

	cfg := &Config{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, filepath.Ext(path))
	}

	if err := feedFromEnv(cfg, envPrefix); err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

// ConfigFromEnv builds a Config from defaults plus environment overrides,
// for deployments that carry no config file.
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := feedFromEnv(cfg, envPrefix); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// feedFromEnv sets struct fields from environment variables using the `env`
// struct tag prefixed with the given prefix.
func feedFromEnv(structure interface{}, prefix string) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return ErrConfigInvalidStructure
	}

	elem := rv.Elem()
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		fieldType := elem.Type().Field(i)

		envTag, exists := fieldType.Tag.Lookup("env")
		if !exists {
			continue
		}

		envName := strings.ToUpper(prefix + "_" + envTag)
		envValue := os.Getenv(envName)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("error in field '%s' from %s: %w", fieldType.Name, envName, err)
		}
	}

	return nil
}

// setFieldValue converts a string environment value to the field's type.
// Duration fields are parsed directly; everything else goes through cast.
func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	if field.Type() == reflect.TypeOf(Duration(0)) {
		parsed, err := time.ParseDuration(strValue)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", strValue, err)
		}
		field.Set(reflect.ValueOf(Duration(parsed)))
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}

	field.Set(reflect.ValueOf(convertedValue))
	return nil
}
