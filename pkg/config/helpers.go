package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SetValue sets a configuration value by its dotted key, e.g. settings.log_level or
// archive.http_timeout.
func (c *Config) SetValue(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}

	if _, ok := field.Interface().(time.Duration); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %s", key, value)
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
			return fmt.Errorf("invalid boolean value for %s: %s", key, value)
		}
		field.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		field.SetInt(int64(n))
	case reflect.Uint:
		n, err := strconv.ParseUint(value, 10, 0)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		field.SetUint(n)
	default:
		return fmt.Errorf("unsupported configuration key: %s", key)
	}
	return nil
}

// GetValue returns a configuration value by its dotted key.
func (c *Config) GetValue(key string) (string, error) {
	field, err := c.lookup(key)
	if err != nil {
		return "", err
	}
	return formatValue(field), nil
}

// ToMap returns every configuration value keyed by its dotted key.
// This is useful for displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	root := reflect.ValueOf(c).Elem()
	for i := 0; i < root.NumField(); i++ {
		section := yamlKey(root.Type().Field(i))
		sv := root.Field(i)
		for j := 0; j < sv.NumField(); j++ {
			result[section+"."+yamlKey(sv.Type().Field(j))] = formatValue(sv.Field(j))
		}
	}
	return result
}

// Keys returns the sorted dotted keys accepted by GetValue and SetValue.
func (c *Config) Keys() []string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return reflect.Value{}, fmt.Errorf("unknown configuration key: %s", key)
	}
	root := reflect.ValueOf(c).Elem()
	for i := 0; i < root.NumField(); i++ {
		if yamlKey(root.Type().Field(i)) != section {
			continue
		}
		sv := root.Field(i)
		for j := 0; j < sv.NumField(); j++ {
			if yamlKey(sv.Type().Field(j)) == name {
				return sv.Field(j), nil
			}
		}
	}
	return reflect.Value{}, fmt.Errorf("unknown configuration key: %s", key)
}

// yamlKey returns the yaml name of a field, without options such as omitempty.
func yamlKey(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return strings.Split(tag, ",")[0]
}

func formatValue(v reflect.Value) string {
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
