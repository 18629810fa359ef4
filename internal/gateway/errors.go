package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/hlog"
)

// ErrorHandler writes the response for an error no inner stage handled.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type ctxKey int

const keyErrorHandler ctxKey = 0

// Errors installs h as the error boundary for everything below it.
func Errors(h ErrorHandler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), keyErrorHandler, h)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Fail hands err to the closest error boundary, or to DefaultErrorHandler.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	if h, ok := r.Context().Value(keyErrorHandler).(ErrorHandler); ok && h != nil {
		h(w, r, err)
		return
	}
	DefaultErrorHandler(w, r, err)
}

func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	logger := hlog.FromRequest(r)

	// client went away, nobody to answer
	if errors.Is(err, context.Canceled) {
		logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request canceled")
		return
	}

	if HeadersSent(w) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("error after response started")
		return
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		logger.Warn().Int64("limit", maxBytes.Limit).Str("path", r.URL.Path).Msg("body over server limit")
		writeJSON(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return
	}

	logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// Recover converts panics below it into a 500 response.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := Track(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				hlog.FromRequest(r).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Msg("handler panic")

				if !tw.HeadersSent() {
					writeJSON(tw, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, errCode, msg string) {
	var body errorBody
	body.Error.Code = errCode
	body.Error.Message = msg
	b, _ := json.Marshal(body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// WriteError writes the gateway's JSON error envelope.
func WriteError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, errCode, msg)
}
