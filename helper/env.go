package helper

import (
	"fmt"
	"os"
	"strings"

	"github.com/relloyd/taxipipe/constants"
)

// GetEnvVar fetches OS environment variable.
// If the variable is not set it returns empty string.
// It also returns an error if there is a missing value AND mandatory == true.
func GetEnvVar(k string, mandatory bool) (string, error) {
	if value := os.Getenv(k); value != "" {
		return value, nil
	}
	if mandatory {
		return "", fmt.Errorf("environment variable %v is not set", k)
	}
	return "", nil
}

// ReadValueFromEnv will read the env var name and populate the supplied val.
// If the env var is not set then return an error.
func ReadValueFromEnv(name string, val *string) error {
	v := os.Getenv(name)
	if v != "" { // if the environment variable was set...
		*val = v // update the callers value
		return nil
	}
	return fmt.Errorf("value for environment variable %v not found", name)
}

// ReadValueFromEnvWithDefault will read the value of name from the environment into v.
// If it's not set then it will apply the supplied defaultValue and return v.
func ReadValueFromEnvWithDefault(name string, defaultValue string) (v string) {
	_ = ReadValueFromEnv(name, &v)
	if v == "" && defaultValue != "" { // if the environment variable is not set and we have been given a default value...
		v = defaultValue
	}
	return
}

// GetEnvVarName converts a config path like ("warehouse", "stage-name") into TP_WAREHOUSE_STAGE_NAME.
func GetEnvVarName(parts ...string) string {
	x := make([]string, 0, len(parts)+1)
	x = append(x, constants.EnvVarPrefix)
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		p = strings.ReplaceAll(p, "-", "_")
		x = append(x, p)
	}
	return strings.Join(x, "_")
}

// LookupPrefixedEnv returns all environment variables that start with prefix, with the prefix removed.
func LookupPrefixedEnv(prefix string) map[string]string {
	retval := make(map[string]string)
	for _, kv := range os.Environ() {
		idx := strings.Index(kv, "=")
		if idx < 0 {
			continue
		}
		k, v := kv[:idx], kv[idx+1:]
		if strings.HasPrefix(k, prefix) && v != "" {
			retval[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return retval
}
