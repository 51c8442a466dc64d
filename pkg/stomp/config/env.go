package config

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// GetEnvObject returns the process environment as a cty object, exposed to
// configuration expressions as env.
func GetEnvObject() cty.Value {
	return envObject(os.Environ())
}

// envObject builds an object from KEY=value pairs. Names that aren't valid
// HCL identifiers have the offending characters replaced with underscores.
func envObject(environ []string) cty.Value {
	envMap := make(map[string]cty.Value)

	for _, envVar := range environ {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}
		envMap[sanitizeEnvVarName(key)] = cty.StringVal(value)
	}

	if len(envMap) == 0 {
		return cty.EmptyObjectVal
	}

	return cty.ObjectVal(envMap)
}

func sanitizeEnvVarName(name string) string {
	if name == "" {
		return "_"
	}

	var result strings.Builder

	for i, char := range name {
		switch {
		case i == 0 && !isValidFirstChar(char):
			result.WriteRune('_')
		case i > 0 && !isValidChar(char):
			result.WriteRune('_')
		default:
			result.WriteRune(char)
		}
	}

	return result.String()
}

func isValidFirstChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isValidChar(r rune) bool {
	return isValidFirstChar(r) || (r >= '0' && r <= '9') || r == '-'
}
