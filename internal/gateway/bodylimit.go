package gateway

import (
	"net/http"

	"github.com/AlexKimmel/bodygate/internal/stream"
)

// BodyLimit caps every request body at the server level. Decoding routes
// enforce their own, usually smaller, limits on top of it.
func BodyLimit(limit stream.Limit) Middleware {
	n, ok := limit.Max()
	if !ok {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
