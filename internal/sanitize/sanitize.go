// Package sanitize strips markup from user and backend supplied text.
//
// Every string is reduced to plain text: tags and attributes are removed,
// the content of script-like elements is dropped, entities are decoded and
// surrounding whitespace is trimmed. The result is stable under repeated
// sanitization.
package sanitize

import (
	"html"
	"reflect"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// String returns s as trimmed plain text.
func String(s string) string {
	out := strings.TrimSpace(s)
	// decoding entities can surface new markup ("&lt;b&gt;"), so repeat until
	// stable; a pass that changes the text shortens it
	for i := 0; i <= len(s); i++ {
		next := strings.TrimSpace(html.UnescapeString(policy.Sanitize(out)))
		if next == out {
			break
		}
		out = next
	}
	return out
}

// Map returns a copy of fields with every string value sanitized. Values of
// other types are copied as they are.
func Map(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = String(s)
			continue
		}
		out[k] = v
	}
	return out
}

// Struct returns a copy of v with all exported string fields sanitized,
// descending into nested structs. Pointers, slices and maps are not followed.
func Struct[T any](v T) T {
	sanitizeValue(reflect.ValueOf(&v).Elem())
	return v
}

// Slice sanitizes every element of items into a new slice.
func Slice[T any](items []T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = Struct(item)
	}
	return out
}

func sanitizeValue(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.String:
		if rv.CanSet() {
			rv.SetString(String(rv.String()))
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if f := rv.Field(i); f.CanSet() {
				sanitizeValue(f)
			}
		}
	}
}
