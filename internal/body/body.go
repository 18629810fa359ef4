// Package body reads request bodies under a size limit and stores the
// decoded payload on the request context for the next handler.
//
// Every constructor returns a gateway.Middleware:
//
//	mux.Handle("/items", gateway.Chain(itemsHandler,
//		body.JSON(body.WithMax(1<<20)),
//	))
//
// A body that grows past the limit is answered by the OnMaxReached handler
// (413 by default). JSON and YAML bodies that fail to parse are answered by
// the OnParseFailed handler (400 by default). Anything else goes to the
// gateway error boundary.
package body

import (
	"errors"
	"net/http"

	"github.com/AlexKimmel/bodygate/internal/gateway"
	"github.com/AlexKimmel/bodygate/internal/stream"
)

// MaxReachedHandler answers a request whose body exceeded the limit.
type MaxReachedHandler func(w http.ResponseWriter, r *http.Request, err *stream.EntityTooLargeError)

// ParseFailedHandler answers a request whose JSON or YAML body did not parse.
type ParseFailedHandler func(w http.ResponseWriter, r *http.Request, err *ParseError)

// Rejection reasons passed to Observer.BodyRejected.
const (
	ReasonTooLarge    = "too_large"
	ReasonParseFailed = "parse_failed"
)

// Observer is told about every body the middleware accepts or rejects.
type Observer interface {
	BodyRead(r *http.Request, format Format, size int)
	BodyRejected(r *http.Request, format Format, reason string)
}

type nopObserver struct{}

func (nopObserver) BodyRead(*http.Request, Format, int)        {}
func (nopObserver) BodyRejected(*http.Request, Format, string) {}

type Option func(*config)

type config struct {
	limit         stream.Limit
	onMaxReached  MaxReachedHandler
	onParseFailed ParseFailedHandler
	observer      Observer
}

func defaultConfig() *config {
	return &config{
		limit:         stream.Unlimited(),
		onMaxReached:  DefaultMaxReached,
		onParseFailed: DefaultParseFailed,
		observer:      nopObserver{},
	}
}

// WithMax sets the largest accepted body in bytes. A negative value makes
// the constructor panic with a *stream.ConfigError.
func WithMax(n int64) Option {
	return func(cfg *config) {
		cfg.limit = stream.MaxBytes(n)
	}
}

// WithLimit sets the body limit from an existing stream.Limit.
func WithLimit(l stream.Limit) Option {
	return func(cfg *config) {
		cfg.limit = l
	}
}

func WithOnMaxReached(h MaxReachedHandler) Option {
	return func(cfg *config) {
		if h != nil {
			cfg.onMaxReached = h
		}
	}
}

// WithOnParseFailed only has an effect on JSON and YAML middleware.
func WithOnParseFailed(h ParseFailedHandler) Option {
	return func(cfg *config) {
		if h != nil {
			cfg.onParseFailed = h
		}
	}
}

func WithObserver(o Observer) Option {
	return func(cfg *config) {
		if o != nil {
			cfg.observer = o
		}
	}
}

// DefaultMaxReached answers 413 with an empty body.
func DefaultMaxReached(w http.ResponseWriter, _ *http.Request, _ *stream.EntityTooLargeError) {
	if !gateway.HeadersSent(w) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}
}

// DefaultParseFailed answers 400 with an empty body.
func DefaultParseFailed(w http.ResponseWriter, _ *http.Request, _ *ParseError) {
	if !gateway.HeadersSent(w) {
		w.WriteHeader(http.StatusBadRequest)
	}
}

// Raw stores the body as []byte.
func Raw(opts ...Option) gateway.Middleware { return New(FormatRaw, opts...) }

// String stores the body as UTF-8 text.
func String(opts ...Option) gateway.Middleware { return New(FormatString, opts...) }

// Form stores the body as a map of URL-encoded form fields.
func Form(opts ...Option) gateway.Middleware { return New(FormatForm, opts...) }

// JSON stores the parsed JSON document. An empty body is stored as nil.
func JSON(opts ...Option) gateway.Middleware { return New(FormatJSON, opts...) }

// YAML stores the parsed YAML document in the shape encoding/json would
// produce for the same data. An empty body is stored as nil.
func YAML(opts ...Option) gateway.Middleware { return New(FormatYAML, opts...) }

// New returns the middleware for format. It panics on an unknown format or
// an invalid limit, both being programming errors.
func New(format Format, opts ...Option) gateway.Middleware {
	decode, err := decoderFor(format)
	if err != nil {
		panic(err)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.limit.Validate(); err != nil {
		panic(err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := gateway.Track(w)

			data, err := stream.ReadRequest(r, cfg.limit)
			var payload any
			if err == nil {
				payload, err = decode(data)
			}

			var tooLarge *stream.EntityTooLargeError
			var parseErr *ParseError
			switch {
			case err == nil:
			case errors.As(err, &tooLarge):
				cfg.observer.BodyRejected(r, format, ReasonTooLarge)
				cfg.onMaxReached(tw, r, tooLarge)
				return
			case errors.As(err, &parseErr):
				cfg.observer.BodyRejected(r, format, ReasonParseFailed)
				cfg.onParseFailed(tw, r, parseErr)
				return
			default:
				gateway.Fail(tw, r, err)
				return
			}

			cfg.observer.BodyRead(r, format, len(data))
			next.ServeHTTP(tw, WithPayload(r, format, payload))
		})
	}
}
