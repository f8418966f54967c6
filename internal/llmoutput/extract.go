// Package llmoutput turns free-form model responses into typed payloads.
//
// Extraction degrades through a fixed sequence of layers and stops at the
// first success. Validation then checks required keys, closed vocabularies
// and per-payload structural rules.
package llmoutput

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"smartqa-backend/internal/shared/metrics"
)

// RawPrefixRunes bounds the raw text kept on a ParseError.
const RawPrefixRunes = 2500

// Layer names the extraction step that produced a payload.
type Layer string

const (
	LayerDirect    Layer = "direct"
	LayerUnescaped Layer = "unescaped"
	LayerLiteral   Layer = "literal"
)

var (
	objectSpan = regexp.MustCompile(`(?s)\{.*\}`)
	arraySpan  = regexp.MustCompile(`(?s)\[.*\]`)

	errNotObject   = errors.New("payload is not an object")
	errMangledKeys = errors.New("literal payload has escaped keys")
)

// ParseError reports output that no layer could turn into an object.
type ParseError struct {
	RawPrefix string
	Err       error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "unparsable model output: " + e.Err.Error()
	}
	return "unparsable model output"
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a payload that parsed but violates its contract.
// Missing lists absent required keys; Invalid maps a field path to the
// rule it failed.
type SchemaError struct {
	Missing []string
	Invalid map[string]string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		keys := sortedKeys(e.Invalid)
		invalid := make([]string, 0, len(keys))
		for _, k := range keys {
			invalid = append(invalid, k+"="+e.Invalid[k])
		}
		parts = append(parts, "invalid "+strings.Join(invalid, ", "))
	}
	if len(parts) == 0 {
		return "schema violation"
	}
	return "schema violation: " + strings.Join(parts, "; ")
}

func (e *SchemaError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

func (e *SchemaError) invalid(field, rule string) {
	if e.Invalid == nil {
		e.Invalid = map[string]string{}
	}
	e.Invalid[field] = rule
}

// IsValidationFailure reports whether err came from parsing or schema checks,
// the class of failures a prompt-level retry can fix.
func IsValidationFailure(err error) bool {
	var pe *ParseError
	var se *SchemaError
	return errors.As(err, &pe) || errors.As(err, &se)
}

// Options tune extraction for a specific payload contract.
type Options struct {
	// WrapArrayKey wraps a bare top-level array as {WrapArrayKey: [...]}.
	WrapArrayKey string
}

// Object is an extracted top-level JSON object, keyed by field name.
type Object map[string]json.RawMessage

// Result is a successfully extracted object and the layer that produced it.
type Result struct {
	Object Object
	Layer  Layer
}

// ExtractObject isolates and parses the object in raw.
func ExtractObject(raw string, opts Options) (Result, error) {
	res, err := extract(raw, opts, true)
	if err != nil {
		return Result{}, &ParseError{RawPrefix: prefix(raw, RawPrefixRunes), Err: err}
	}
	metrics.IncParseLayer(string(res.Layer))
	return res, nil
}

// extract runs the layers. A response that is itself one JSON string
// literal is decoded first and extracted again, once.
func extract(raw string, opts Options, unquote bool) (Result, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}, errors.New("empty response")
	}

	if unquote && strings.HasPrefix(text, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(text), &inner); err == nil {
			res, err := extract(inner, opts, false)
			if err != nil {
				return Result{}, err
			}
			res.Layer = LayerLiteral
			return res, nil
		}
	}

	if opts.WrapArrayKey != "" && startsWithArray(text) {
		if span := arraySpan.FindString(text); span != "" {
			var items []json.RawMessage
			if err := json.Unmarshal([]byte(span), &items); err == nil {
				wrapped, _ := json.Marshal(map[string][]json.RawMessage{opts.WrapArrayKey: items})
				var obj Object
				_ = json.Unmarshal(wrapped, &obj)
				return Result{Object: obj, Layer: LayerDirect}, nil
			}
		}
	}

	span := text
	if m := objectSpan.FindString(text); m != "" {
		span = strings.TrimSpace(m)
	}

	var lastErr error
	for _, step := range []struct {
		layer Layer
		parse func(string) (Object, error)
	}{
		{LayerDirect, decodeObject},
		{LayerUnescaped, func(s string) (Object, error) { return decodeObject(strings.ReplaceAll(s, `\"`, `"`)) }},
		{LayerLiteral, decodeLiteral},
	} {
		obj, err := step.parse(span)
		if err == nil {
			return Result{Object: obj, Layer: step.layer}, nil
		}
		lastErr = err
	}
	return Result{}, lastErr
}

func decodeObject(s string) (Object, error) {
	var obj Object
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}

// decodeLiteral is the permissive layer: YAML flow syntax accepts single
// quotes and unquoted keys. A string result is parsed again as JSON.
func decodeLiteral(s string) (Object, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case map[string]any:
		for k := range val {
			if strings.Contains(k, `\"`) || strings.Contains(k, `\n`) || strings.Contains(k, "\n") {
				return nil, errMangledKeys
			}
		}
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return decodeObject(string(b))
	case string:
		inner := strings.TrimSpace(val)
		if m := objectSpan.FindString(inner); m != "" {
			inner = m
		}
		return decodeObject(inner)
	default:
		return nil, errNotObject
	}
}

func startsWithArray(text string) bool {
	obj := strings.IndexByte(text, '{')
	arr := strings.IndexByte(text, '[')
	return arr >= 0 && (obj < 0 || arr < obj)
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// requireKeys returns the keys absent from obj, in the order given.
func requireKeys(obj Object, path string, keys ...string) []string {
	var missing []string
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, joinPath(path, k))
		}
	}
	return missing
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// text reads a scalar field as trimmed text. Numbers and booleans are
// rendered literally; anything else yields "".
func (o Object) text(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return fmt.Sprint(b)
	}
	return ""
}
