package gateway

import "net/http"

// TrackWriter remembers the status and size of what was written through it,
// so later stages can tell whether the response has already started.
type TrackWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

// Track wraps w unless it is already tracked.
func Track(w http.ResponseWriter) *TrackWriter {
	if tw, ok := w.(*TrackWriter); ok {
		return tw
	}
	return &TrackWriter{ResponseWriter: w}
}

// WriteHeader passes 1xx informational codes through without counting them
// as the response status.
func (w *TrackWriter) WriteHeader(code int) {
	if w.status == 0 && code >= http.StatusOK {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *TrackWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *TrackWriter) Flush() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *TrackWriter) HeadersSent() bool { return w.status != 0 }

// Status is the first status written, 0 if nothing was written yet.
func (w *TrackWriter) Status() int { return w.status }

func (w *TrackWriter) Size() int { return w.bytes }

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *TrackWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// HeadersSent reports whether w is known to have started its response.
// Writers that do not track this are assumed to be untouched.
func HeadersSent(w http.ResponseWriter) bool {
	if hs, ok := w.(interface{ HeadersSent() bool }); ok {
		return hs.HeadersSent()
	}
	return false
}
