package cache

import (
	"sort"
	"strings"
)

// Key builds a normalized fingerprint for a parameterized query. Parameters
// are sorted by name and lowercased on both sides so semantically identical
// queries collide to the same cache slot regardless of argument order or
// case. Bare identifiers (image names, record names) are case-sensitive and
// should be used directly as keys instead.
func Key(name string, params map[string]string) string {
	if len(params) == 0 {
		return name
	}

	parts := make([]string, 0, len(params))
	for k, v := range params {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)

	return name + "?" + strings.Join(parts, "&")
}
