// Package config loads flat option structs from TOML, the environment and
// command-line flags, and watches config files for changes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/smazurov/mkctl/internal/logging"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "MKCTL_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts, a pointer to a flat struct, with precedence
// flags > environment > TOML file > existing field values.
//
// Fields are bound with tags:
//
//	IdleInterval time.Duration `toml:"controller.idle_interval" env:"IDLE_INTERVAL" flag:"idle-interval"`
//
// A string field named Config holds the TOML path. A missing file is not an
// error. Flags that were not set on the command line are ignored; a field
// without a flag tag matches the flag named after it in kebab case.
func LoadConfig(opts any, flags *pflag.FlagSet) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected pointer to struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := make(map[string]string)
	if flags != nil {
		flags.Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})
	}

	// The config path itself may come from a flag.
	if field := v.FieldByName("Config"); field.IsValid() && field.Kind() == reflect.String {
		if value, ok := changed[flagName(t, "Config")]; ok {
			field.SetString(value)
		}
	}

	if path := configPath(v); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			var tree map[string]any
			if err := toml.Unmarshal(data, &tree); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}
			for i := 0; i < v.NumField(); i++ {
				tomlPath := t.Field(i).Tag.Get("toml")
				if tomlPath == "" {
					continue
				}
				if value := getNestedValue(tree, tomlPath); value != nil {
					if err := setFieldValue(v.Field(i), value); err != nil {
						return fmt.Errorf("config %s: %w", tomlPath, err)
					}
				}
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		envKey := t.Field(i).Tag.Get("env")
		if envKey == "" {
			continue
		}
		if envValue, ok := os.LookupEnv(EnvPrefix + envKey); ok && envValue != "" {
			if err := setFieldValueFromString(v.Field(i), envValue); err != nil {
				return fmt.Errorf("env %s%s: %w", EnvPrefix, envKey, err)
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		if value, ok := changed[flagName(t, t.Field(i).Name)]; ok {
			if err := setFieldValueFromString(v.Field(i), value); err != nil {
				return fmt.Errorf("flag --%s: %w", flagName(t, t.Field(i).Name), err)
			}
		}
	}

	return nil
}

func configPath(v reflect.Value) string {
	if field := v.FieldByName("Config"); field.IsValid() && field.Kind() == reflect.String {
		return field.String()
	}
	return ""
}

// flagName returns the flag bound to the named field.
func flagName(t reflect.Type, fieldName string) string {
	if f, ok := t.FieldByName(fieldName); ok {
		if name := f.Tag.Get("flag"); name != "" {
			return name
		}
	}
	return fieldNameToFlag(fieldName)
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Port" -> "port".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	current := data
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

// setFieldValue sets a field from a decoded TOML value.
func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		switch d := value.(type) {
		case string:
			return setFieldValueFromString(field, d)
		case int64:
			// Bare integers are milliseconds.
			field.SetInt(int64(time.Duration(d) * time.Millisecond))
			return nil
		}
		return fmt.Errorf("cannot use %T as duration", value)
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
			return nil
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int64, reflect.Int32:
		if i, ok := value.(int64); ok {
			field.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		if i, ok := value.(int64); ok && i >= 0 {
			field.SetUint(uint64(i))
			return nil
		}
	case reflect.Float64:
		switch f := value.(type) {
		case float64:
			field.SetFloat(f)
			return nil
		case int64:
			field.SetFloat(float64(f))
			return nil
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			if arr, ok := value.([]any); ok {
				slice := make([]string, 0, len(arr))
				for _, item := range arr {
					s, strOk := item.(string)
					if !strOk {
						return fmt.Errorf("cannot use %T in string list", item)
					}
					slice = append(slice, s)
				}
				field.Set(reflect.ValueOf(slice))
				return nil
			}
		}
	case reflect.Map:
		if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.String {
			if table, ok := value.(map[string]any); ok {
				m := make(map[string]string, len(table))
				for k, item := range table {
					m[k] = fmt.Sprint(item)
				}
				field.Set(reflect.ValueOf(m))
				return nil
			}
		}
	}
	return fmt.Errorf("cannot use %T for %s field", value, field.Type())
}

// setFieldValueFromString sets a field from an env var or flag value.
func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
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
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64, reflect.Int32:
		i, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(u)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		// Comma-separated; pflag string slices render as [a,b]
		value = strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
		parts := strings.Split(value, ",")
		slice := make([]string, len(parts))
		for i, part := range parts {
			slice[i] = strings.TrimSpace(part)
		}
		field.Set(reflect.ValueOf(slice))
	case reflect.Map:
		// module=level pairs, comma-separated
		m := make(map[string]string)
		for _, pair := range strings.Split(value, ",") {
			k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				return fmt.Errorf("expected key=value, got %q", pair)
			}
			m[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
		field.Set(reflect.ValueOf(m))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// LoadLoggingConfig reads the [logging] table of a TOML file. Per-module
// levels may sit directly in the table or under [logging.modules]. It returns
// defaults when the file is missing or unreadable.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		switch v := value.(type) {
		case string:
			switch key {
			case "level":
				cfg.Level = v
			case "format":
				cfg.Format = v
			default:
				cfg.Modules[key] = v
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range v {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		}
	}

	return cfg
}
