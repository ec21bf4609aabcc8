package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RawRecord is one untrusted upstream FIDS entry. Field names differ between
// airports, so the record keeps every field and callers pick values through
// alias lists instead of fixed struct tags.
type RawRecord map[string]json.RawMessage

// LocalizedName mirrors the upstream's multi-language name objects.
type LocalizedName struct {
	ZhTw string `json:"Zh_tw"`
	En   string `json:"En"`
}

// Has reports whether field is present and not JSON null.
func (r RawRecord) Has(field string) bool {
	v, ok := r[field]
	return ok && !isNull(v)
}

// String returns field as text. Strings are unquoted, numbers and booleans
// keep their literal form, objects, arrays and null yield "".
func (r RawRecord) String(field string) string {
	v, ok := r[field]
	if !ok {
		return ""
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{', '[', 'n':
		return ""
	default:
		if _, err := strconv.ParseFloat(string(v), 64); err == nil {
			return string(v)
		}
		if string(v) == "true" || string(v) == "false" {
			return string(v)
		}
		return ""
	}
}

// First returns the first non-empty value among fields, in order.
func (r RawRecord) First(fields []string) string {
	for _, f := range fields {
		if s := r.String(f); s != "" {
			return s
		}
	}
	return ""
}

// Localized decodes a {Zh_tw, En} name object. Missing or malformed values
// yield the zero LocalizedName.
func (r RawRecord) Localized(field string) LocalizedName {
	var name LocalizedName
	v, ok := r[field]
	if !ok || isNull(v) {
		return name
	}
	_ = json.Unmarshal(v, &name)
	return name
}

func isNull(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
