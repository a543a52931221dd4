package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Duration is a time.Duration that reads "90s" style strings or whole seconds and prints as a string.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

var durationType = reflect.TypeOf(Duration(0))

func stringToDurationHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if t != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %v", v, err)
		}
		return Duration(d), nil
	case int:
		return Duration(time.Duration(v) * time.Second), nil
	case int64:
		return Duration(time.Duration(v) * time.Second), nil
	case float64:
		return Duration(time.Duration(v * float64(time.Second))), nil
	}
	return data, nil
}

// setting is a leaf of the configuration tree.
type setting struct {
	path []string
	kind reflect.Kind
}

func (s setting) envKey() string {
	return strings.Join(s.path, "_")
}

// settings walks the mapstructure tags of t.
func settings(t reflect.Type, parent []string) []setting {
	var retval []setting
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		p := append(append([]string{}, parent...), tag)
		if f.Type.Kind() == reflect.Struct {
			retval = append(retval, settings(f.Type, p)...)
			continue
		}
		retval = append(retval, setting{path: p, kind: f.Type.Kind()})
	}
	return retval
}

// applyEnv copies environment overrides into raw. Keys in env have the prefix removed, e.g.
// WAREHOUSE_STATEMENT_TIMEOUT sets warehouse.statement_timeout and LOAD_TABLES_GREEN sets the
// green entry of load.tables. Slices are comma separated.
func applyEnv(raw map[string]interface{}, env map[string]string, t reflect.Type) error {
	known := settings(t, nil)
	for k, v := range env {
		key := strings.ToLower(k)
		for _, s := range known {
			switch {
			case s.kind == reflect.Map && strings.HasPrefix(key, s.envKey()+"_"):
				entry := strings.TrimPrefix(key, s.envKey()+"_")
				if err := setPath(raw, append(append([]string{}, s.path...), entry), v); err != nil {
					return err
				}
			case key == s.envKey():
				var val interface{} = v
				if s.kind == reflect.Slice {
					val = splitList(v)
				}
				if err := setPath(raw, s.path, val); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func splitList(v string) []interface{} {
	var retval []interface{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			retval = append(retval, s)
		}
	}
	return retval
}

func setPath(m map[string]interface{}, path []string, v interface{}) error {
	for i, p := range path {
		if i == len(path)-1 {
			m[p] = v
			return nil
		}
		next, ok := m[p]
		if !ok || next == nil {
			n := make(map[string]interface{})
			m[p] = n
			m = n
			continue
		}
		n, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("config key %v is not a section", strings.Join(path[:i+1], "."))
		}
		m = n
	}
	return nil
}

// normalize converts the map[interface{}]interface{} values produced by yaml.v2 into string keyed maps.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range x {
			x[k] = normalize(val)
		}
		return x
	case []interface{}:
		for i, val := range x {
			x[i] = normalize(val)
		}
		return x
	}
	return v
}
