package utils

import (
	"strconv"
	"strings"
)

// ToInt coerces loosely-typed JSON numbers (float64, string, int) to an int,
// falling back when the value is absent or malformed.
func ToInt(value any, fallback int) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

// ToBool coerces loosely-typed JSON values to a bool, returning nil when the
// value carries no recognisable boolean meaning.
func ToBool(value any) *bool {
	switch v := value.(type) {
	case bool:
		return Ptr(v)
	case int:
		return Ptr(v != 0)
	case float64:
		return Ptr(v != 0)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return Ptr(true)
		case "false", "0", "no":
			return Ptr(false)
		}
	}
	return nil
}
