package datanorm

import (
	"regexp"
	"sort"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonKeyChars   = regexp.MustCompile(`[^a-z0-9_]`)
)

// NormalizeKey converts a source column header into a canonical snake_case
// key: "Order Total" -> "order__total", "courierName" -> "courier_name".
// The doubled underscore is intended: the alias tables are keyed on it.
// It never fails and leaves an already-canonical key unchanged.
func NormalizeKey(name string) string {
	name = strings.TrimSpace(name)

	var b strings.Builder
	b.Grow(len(name) + 8)
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}

	key := strings.ToLower(b.String())
	key = whitespaceRun.ReplaceAllString(key, "_")
	key = nonKeyChars.ReplaceAllString(key, "")
	return strings.TrimLeft(key, "_")
}

// NormalizeKeys returns a copy of raw keyed by canonical names. Raw keys are
// visited in sorted order, so when two headers collapse into one key the
// lexically last header wins on every run.
func NormalizeKeys(raw RawRecord) map[string]any {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(raw))
	for _, k := range keys {
		out[NormalizeKey(k)] = raw[k]
	}
	return out
}
