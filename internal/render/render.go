// Package render substitutes {placeholder} variables in subject and body
// templates. Placeholders without a value are kept visible as [name] so
// missing data is never silently dropped.
package render

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)

// Lookup resolves a normalized (trimmed, lower-cased) field name.
type Lookup interface {
	Get(key string) (string, bool)
}

// Map adapts arbitrary values to Lookup. Keys are expected to be normalized
// already; nil values are treated as absent and everything else goes through
// fmt.Sprint.
type Map map[string]any

// Get implements Lookup.
func (m Map) Get(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	if s, isString := v.(string); isString {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Render replaces every {name} span in tmpl with the value rec holds for
// strings.ToLower(strings.TrimSpace(name)). Absent or empty values render as
// [name] using the text exactly as written. Substituted values are not
// rescanned.
func Render(tmpl string, rec Lookup) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(span string) string {
		inner := span[1 : len(span)-1]
		if rec != nil {
			if val, ok := rec.Get(Key(inner)); ok && val != "" {
				return val
			}
		}
		return "[" + inner + "]"
	})
}

// Key normalizes a placeholder or column name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Placeholders returns the normalized keys referenced by tmpl in order of
// first appearance.
func Placeholders(tmpl string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(tmpl, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		key := Key(m[1])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
