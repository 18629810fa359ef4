package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
)

var (
	// ErrEntityTooLarge matches every *EntityTooLargeError.
	ErrEntityTooLarge = errors.New("entity too large")
	// ErrInvalidLimit matches every *ConfigError.
	ErrInvalidLimit = errors.New("invalid size limit")
)

// EntityTooLargeError is returned when the stream grows past its limit.
type EntityTooLargeError struct {
	Limit int64
}

func (e *EntityTooLargeError) Error() string {
	return "entity too large: limit is " + strconv.FormatInt(e.Limit, 10) + " bytes"
}

func (e *EntityTooLargeError) Is(target error) bool { return target == ErrEntityTooLarge }

// ConfigError reports a size limit that can never be satisfied.
type ConfigError struct {
	Value int64
}

func (e *ConfigError) Error() string {
	return "size limit must be greater than or equal 0, got " + strconv.FormatInt(e.Value, 10)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidLimit }

// Limit is an optional ceiling in bytes. The zero value is unbounded.
type Limit struct {
	max int64
	set bool
}

func Unlimited() Limit { return Limit{} }

func MaxBytes(n int64) Limit { return Limit{max: n, set: true} }

// Max returns the ceiling and whether one is set.
func (l Limit) Max() (int64, bool) { return l.max, l.set }

// Min returns the tighter of l and o. Unlimited loses against any ceiling.
func (l Limit) Min(o Limit) Limit {
	switch {
	case !o.set:
		return l
	case !l.set || o.max < l.max:
		return o
	default:
		return l
	}
}

func (l Limit) Validate() error {
	if l.set && l.max < 0 {
		return &ConfigError{Value: l.max}
	}
	return nil
}

func (l Limit) String() string {
	if !l.set {
		return "unlimited"
	}
	return strconv.FormatInt(l.max, 10)
}

const chunkSize = 32 << 10

// Read consumes r until EOF and returns everything it produced.
// Every successful Read on r is one chunk. The chunk that would push the
// total past the limit is dropped and *EntityTooLargeError is returned
// without reading any further. A *http.MaxBytesError from r is reported as
// *EntityTooLargeError with the reader's own limit. Other read errors than
// io.EOF are returned as they are.
func Read(ctx context.Context, r io.Reader, limit Limit) ([]byte, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	data := make([]byte, 0, initialCap(limit))
	chunk := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			if limit.set && int64(len(data))+int64(n) > limit.max {
				return nil, &EntityTooLargeError{Limit: limit.max}
			}
			data = append(data, chunk[:n]...)
		}

		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, &EntityTooLargeError{Limit: mbe.Limit}
			}
			return nil, err
		}
	}
}

// ReadRequest reads the body of req under limit using the request's context.
// A nil body is an empty stream.
func ReadRequest(req *http.Request, limit Limit) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		if err := limit.Validate(); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}
	return Read(req.Context(), req.Body, limit)
}

func initialCap(limit Limit) int {
	// small ceilings get an exact buffer
	if limit.set && limit.max < chunkSize {
		return int(limit.max)
	}
	return 512
}
