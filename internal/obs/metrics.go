package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/hlog"

	"github.com/AlexKimmel/bodygate/internal/body"
	"github.com/AlexKimmel/bodygate/internal/gateway"
	"github.com/AlexKimmel/bodygate/internal/routing"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BodySize        *prometheus.HistogramVec
	BodyRejections  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bodygate_requests_total",
				Help: "Total HTTP requests processed",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bodygate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		BodySize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bodygate_body_bytes",
				Help:    "Size of accepted request bodies in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"route", "format"},
		),
		BodyRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bodygate_body_rejected_total",
				Help: "Total request bodies rejected as too large or unparsable",
			},
			[]string{"route", "format", "reason"},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.BodySize, m.BodyRejections)
	return m
}

func routeID(r *http.Request) string {
	if rt, ok := routing.RouteFrom(r); ok && rt != nil && rt.ID != "" {
		return rt.ID
	}
	return "unknown"
}

// BodyRead implements body.Observer.
func (m *Metrics) BodyRead(r *http.Request, format body.Format, size int) {
	m.BodySize.WithLabelValues(routeID(r), string(format)).Observe(float64(size))
}

// BodyRejected implements body.Observer.
func (m *Metrics) BodyRejected(r *http.Request, format body.Format, reason string) {
	route := routeID(r)
	m.BodyRejections.WithLabelValues(route, string(format), reason).Inc()

	hlog.FromRequest(r).Debug().
		Str("route", route).
		Str("format", string(format)).
		Str("reason", reason).
		Msg("body rejected")
}

// Middleware records per-request metrics. Mount it below the router so the
// matched route is on the request.
func (m *Metrics) Middleware() gateway.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := gateway.Track(w)

			next.ServeHTTP(rec, r)

			route := routeID(r)
			code := rec.Status()
			if code == 0 {
				code = http.StatusOK
			}

			m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		})
	}
}
