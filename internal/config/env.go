package config

import (
	"os"
	"regexp"
)

// envRef matches ${VAR}, ${VAR:-fallback} and $VAR.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv substitutes environment references in s. Unset variables expand
// to the ${VAR:-fallback} fallback, or to "".
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, fallback := m[1], m[2]
		if name == "" {
			name = m[3]
		}
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		return fallback
	})
}

// ExpandEnvMap returns a copy of m with every value expanded.
func ExpandEnvMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = ExpandEnv(v)
	}
	return out
}
