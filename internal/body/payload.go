package body

import (
	"context"
	"net/http"
)

type ctxKey int

const keyPayload ctxKey = 0

type payload struct {
	format Format
	value  any
}

// WithPayload returns a shallow copy of r carrying v as its decoded body.
func WithPayload(r *http.Request, format Format, v any) *http.Request {
	ctx := context.WithValue(r.Context(), keyPayload, payload{format: format, value: v})
	return r.WithContext(ctx)
}

// Payload returns the decoded body and the format it was decoded from.
// ok is false when no body middleware ran for r.
func Payload(r *http.Request) (v any, format Format, ok bool) {
	p, ok := r.Context().Value(keyPayload).(payload)
	if !ok {
		return nil, "", false
	}
	return p.value, p.format, true
}

// Bytes returns the body stored by Raw.
func Bytes(r *http.Request) ([]byte, bool) {
	v, _, _ := Payload(r)
	b, ok := v.([]byte)
	return b, ok
}

// Text returns the body stored by String.
func Text(r *http.Request) (string, bool) {
	v, _, _ := Payload(r)
	s, ok := v.(string)
	return s, ok
}

// FormValues returns the fields stored by Form.
func FormValues(r *http.Request) (map[string]string, bool) {
	v, _, _ := Payload(r)
	m, ok := v.(map[string]string)
	return m, ok
}

// Value returns the document stored by JSON or YAML. A nil value with
// ok set means the body was empty.
func Value(r *http.Request) (any, bool) {
	v, format, ok := Payload(r)
	if !ok || (format != FormatJSON && format != FormatYAML) {
		return nil, false
	}
	return v, true
}
