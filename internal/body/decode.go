package body

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatRaw    Format = "raw"
	FormatString Format = "string"
	FormatForm   Format = "form"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown body format")

// ParseFormat maps a config value to a Format. Empty means raw.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatRaw, nil
	case FormatRaw, FormatString, FormatForm, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ParseError wraps the error of the JSON or YAML decoder. Name and Message
// are taken from the decoder error as is.
type ParseError struct {
	Format  Format
	Name    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return string(e.Format) + ": " + e.Name + ": " + e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(format Format, err error) *ParseError {
	return &ParseError{
		Format:  format,
		Name:    errorName(err),
		Message: err.Error(),
		Err:     err,
	}
}

// errorName is the type name of err, e.g. "SyntaxError" for
// *json.SyntaxError. Unexported error types (yaml.v3 reports syntax
// problems through plain fmt errors) are named "SyntaxError".
func errorName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" && t.PkgPath() != "" && isExported(name) {
		return name
	}
	return "SyntaxError"
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return r >= 'A' && r <= 'Z'
}

type decodeFunc func(data []byte) (any, error)

func decoderFor(format Format) (decodeFunc, error) {
	switch format {
	case FormatRaw:
		return decodeRaw, nil
	case FormatString:
		return decodeString, nil
	case FormatForm:
		return decodeForm, nil
	case FormatJSON:
		return decodeJSON, nil
	case FormatYAML:
		return decodeYAML, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
}

func decodeRaw(data []byte) (any, error) { return data, nil }

func decodeString(data []byte) (any, error) { return text(data), nil }

func decodeForm(data []byte) (any, error) { return parseForm(text(data)), nil }

func decodeJSON(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return nil, newParseError(FormatJSON, err)
		}
		return nil, err
	}
	return v, nil
}

func decodeYAML(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	dec := yaml.NewDecoder(strings.NewReader(text(data)))

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, newParseError(FormatYAML, err)
	}

	var extra any
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
	case err != nil:
		return nil, newParseError(FormatYAML, err)
	default:
		return nil, newParseError(FormatYAML, errMultiDocument)
	}

	v = jsonShape(v)
	if err := checkFinite(v); err != nil {
		return nil, newParseError(FormatYAML, err)
	}
	return v, nil
}

var errMultiDocument = errors.New("yaml: expected a single document in the stream, but found more")

// checkFinite rejects .inf and .nan, which have no JSON representation.
func checkFinite(v any) error {
	switch t := v.(type) {
	case map[string]any:
		for _, e := range t {
			if err := checkFinite(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := checkFinite(e); err != nil {
				return err
			}
		}
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return fmt.Errorf("yaml: %v cannot be represented as a JSON number", t)
		}
	}
	return nil
}

// text decodes data as UTF-8, replacing invalid sequences with U+FFFD.
func text(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

// maxFormPairs caps the number of pairs parseForm looks at. Pairs after
// it are ignored.
const maxFormPairs = 1000

// parseForm splits an application/x-www-form-urlencoded string. Only '&'
// separates pairs, the first value of a repeated key wins and escapes that
// do not decode are kept verbatim.
func parseForm(s string) map[string]string {
	out := make(map[string]string)
	for pairs := 0; s != "" && pairs < maxFormPairs; {
		var pair string
		pair, s, _ = strings.Cut(s, "&")
		if pair == "" {
			continue
		}
		pairs++

		k, v, _ := strings.Cut(pair, "=")
		k = unescape(k)
		if _, ok := out[k]; ok {
			continue
		}
		out[k] = unescape(v)
	}
	return out
}

func unescape(s string) string {
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}

// jsonShape converts a decoded YAML value into what encoding/json yields
// for the equivalent JSON: map[string]any, []any, float64, string, bool, nil.
func jsonShape(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = jsonShape(e)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = jsonShape(e)
		}
		return m
	case []any:
		for i, e := range t {
			t[i] = jsonShape(e)
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	default:
		return v
	}
}
