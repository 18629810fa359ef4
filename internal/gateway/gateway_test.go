package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/bodygate/internal/stream"
)

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), nil, mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestTrackWriter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	tw := Track(rec)
	assert.Same(t, tw, Track(tw))
	assert.False(t, tw.HeadersSent())
	assert.False(t, HeadersSent(tw))
	assert.False(t, HeadersSent(rec))

	_, err := tw.Write([]byte("hello"))
	require.NoError(t, err)
	tw.WriteHeader(http.StatusTeapot)

	assert.True(t, HeadersSent(tw))
	assert.Equal(t, http.StatusOK, tw.Status())
	assert.Equal(t, 5, tw.Size())
	assert.Same(t, rec, tw.Unwrap())
}

func TestTrackWriter_InformationalStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	tw := Track(rec)

	tw.Header().Set("Link", "</style.css>; rel=preload")
	tw.WriteHeader(http.StatusEarlyHints)
	assert.False(t, tw.HeadersSent())
	assert.Zero(t, tw.Status())

	tw.WriteHeader(http.StatusCreated)
	assert.True(t, tw.HeadersSent())
	assert.Equal(t, http.StatusCreated, tw.Status())
}

func TestFail_UsesBoundary(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var got error
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Fail(w, r, boom)
	}), Errors(func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Same(t, boom, got)
}

func TestDefaultErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sent     bool
		wantCode int
		wantBody string
	}{
		{
			name:     "generic",
			err:      errors.New("disk on fire"),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":{"code":"internal_error","message":"internal server error"}}`,
		},
		{
			name:     "server body limit",
			err:      &http.MaxBytesError{Limit: 10},
			wantCode: http.StatusRequestEntityTooLarge,
			wantBody: `{"error":{"code":"body_too_large","message":"request body too large"}}`,
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantCode: http.StatusOK,
		},
		{
			name:     "headers sent",
			err:      errors.New("late"),
			sent:     true,
			wantCode: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var logs bytes.Buffer
			logger := zerolog.New(&logs)
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req = req.WithContext(logger.WithContext(req.Context()))

			rec := httptest.NewRecorder()
			tw := Track(rec)
			if tt.sent {
				tw.WriteHeader(http.StatusAccepted)
			}

			DefaultErrorHandler(tw, req, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			} else {
				assert.Empty(t, rec.Body.String())
			}
			assert.NotEmpty(t, logs.String())
		})
	}
}

func TestRecover(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}), hlog.NewHandler(zerolog.New(&logs)), Recover())

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "kaboom")
}

func TestRecover_AbortHandler(t *testing.T) {
	t.Parallel()

	h := Recover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	var readErr error
	h := BodyLimit(stream.MaxBytes(4))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, readErr = stream.ReadRequest(r, stream.Unlimited())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("12345")))

	var tooLarge *stream.EntityTooLargeError
	require.ErrorAs(t, readErr, &tooLarge)
	assert.Equal(t, int64(4), tooLarge.Limit)

	next := http.NotFoundHandler()
	assert.NotNil(t, BodyLimit(stream.Unlimited())(next))
}
