package diaglog

import (
	"os"
	"strings"
)

// sensitiveKeys are the field names whose values are replaced with
// "[REDACTED]" before any log entry is written.
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"token":         true,
	"password":      true,
	"secret":        true,
	"cookie":        true,
}

// pathKeys hold filesystem paths; the user's home prefix is folded to "~" so
// exported bundles do not leak account names.
var pathKeys = map[string]bool{
	"path":  true,
	"dir":   true,
	"root":  true,
	"uri":   true,
	"id":    true,
	"watch": true,
}

// Redact recursively traverses v, replacing sensitive values and shortening
// home-relative paths. v is not mutated; a new map is returned. Non-map
// types are returned unchanged.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			switch {
			case sensitiveKeys[k]:
				out[k] = "[REDACTED]"
			case pathKeys[k]:
				if s, ok := child.(string); ok {
					out[k] = foldHome(s)
				} else {
					out[k] = Redact(child)
				}
			default:
				out[k] = Redact(child)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	default:
		return v
	}
}

func foldHome(p string) string {
	home := os.Getenv("HOME")
	if home == "" || home == "/" {
		return p
	}
	return strings.ReplaceAll(p, home, "~")
}
