package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoObject is returned when no JSON object can be located in a text.
var ErrNoObject = errors.New("jsonutil: no JSON object found")

// ExtractObject returns the JSON object embedded in text. Models often wrap
// their answer in prose or code fences; the span from the first '{' to the
// last '}' is taken and must parse as a JSON object.
func ExtractObject(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, ErrNoObject
	}
	candidate := []byte(text[start : end+1])
	var obj map[string]any
	if err := json.Unmarshal(candidate, &obj); err != nil {
		return nil, err
	}
	return json.RawMessage(candidate), nil
}

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Remove trailing newline from json.Encoder.Encode
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent encodes v into indented JSON without HTML escaping.
// Reports carry URLs with query strings that should stay readable.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
