package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PathEnv names the variable holding an optional YAML config path.
const PathEnv = "CONFIG_FILE"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills target, a pointer to struct, in two layers: the YAML file named by
// CONFIG_FILE when set, then environment variables. A field's variable is its `env` tag, or
// PARENT_CHILD derived from the field path when untagged; `env:"-"` leaves a field to the file.
func LoadConfig(target interface{}) error {
	if target == nil {
		return errors.New("config: target is nil")
	}
	root := reflect.ValueOf(target)
	if root.Kind() != reflect.Ptr || root.Elem().Kind() != reflect.Struct {
		return errors.New("config: target must be pointer to struct")
	}

	if path, ok := lookupEnv(PathEnv); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	return overlayEnv(root.Elem(), "")
}

// lookupEnv returns the trimmed value of key.
func lookupEnv(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	return strings.TrimSpace(raw), ok
}

// envName upper-cases key, turns dashes into underscores and joins it to prefix.
func envName(prefix, key string) string {
	key = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// envKey resolves the variable for field. skip is set for `env:"-"`.
func envKey(prefix string, field reflect.StructField) (key string, skip bool) {
	switch tag := field.Tag.Get("env"); tag {
	case "-":
		return "", true
	case "":
		return envName(prefix, field.Name), false
	default:
		return envName("", tag), false
	}
}

func overlayEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, value := t.Field(i), v.Field(i)
		if !value.CanSet() {
			continue
		}
		if field.Anonymous {
			if err := overlayEnv(value, prefix); err != nil {
				return err
			}
			continue
		}

		key, skip := envKey(prefix, field)
		if skip {
			continue
		}
		if value.Kind() == reflect.Struct {
			if err := overlayEnv(value, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := lookupEnv(key)
		if !ok {
			continue
		}
		if err := setField(value, raw); err != nil {
			return fmt.Errorf("config: parse %s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := parseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// parseDuration accepts Go duration strings and bare integers as seconds.
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
