package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Localized is a field value in one of two source shapes: a locale map
// ({"en-US": v, "de-DE": w}) or a bare value that belongs to the default
// locale. Both decode to Values keyed by locale; Single records which shape
// arrived.
type Localized struct {
	Values map[string]any
	Single bool
}

// UnmarshalJSON decides the shape once. An object is a locale map unless it
// is itself a value: a link (has "sys") or a rich text node (has "nodeType").
func (l *Localized) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = Localized{}
		return nil
	}

	v, err := decodeAny(trimmed)
	if err != nil {
		return fmt.Errorf("decode localized value: %w", err)
	}

	if obj, ok := v.(map[string]any); ok && !isValueObject(obj) {
		*l = Localized{Values: obj}
		return nil
	}

	*l = Localized{Values: map[string]any{DefaultLocale: v}, Single: true}
	return nil
}

// MarshalJSON always emits the locale map shape.
func (l Localized) MarshalJSON() ([]byte, error) {
	if l.Values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(l.Values)
}

// IsZero reports whether no value was present.
func (l Localized) IsZero() bool {
	return len(l.Values) == 0
}

// Locales returns the locale keys in sorted order.
func (l Localized) Locales() []string {
	return slices.Sorted(maps.Keys(l.Values))
}

// String returns the value for locale as a string, falling back to the
// default locale.
func (l Localized) String(locale string) string {
	for _, key := range []string{locale, DefaultLocale} {
		if s, ok := l.Values[key].(string); ok {
			return s
		}
	}
	return ""
}

// SingleLocale wraps a plain value in the default locale.
func SingleLocale(v any) Localized {
	return Localized{Values: map[string]any{DefaultLocale: v}, Single: true}
}

func isValueObject(obj map[string]any) bool {
	if _, ok := obj["nodeType"]; ok {
		return true
	}
	if sys, ok := obj["sys"].(map[string]any); ok {
		_, hasType := sys["type"]
		return hasType
	}
	return false
}
