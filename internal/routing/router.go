package routing

import (
	"context"
	"net/http"
	"strings"

	"github.com/AlexKimmel/bodygate/internal/body"
	"github.com/AlexKimmel/bodygate/internal/gateway"
	"github.com/AlexKimmel/bodygate/internal/stream"
)

// Route binds a method set and path prefix to a body decoding handler.
type Route struct {
	ID      string
	Methods map[string]struct{}
	Prefix  string
	Format  body.Format
	Limit   stream.Limit
	Handler http.Handler
}

type Router struct {
	routes []*Route
}

func New() *Router {
	return &Router{}
}

func (r *Router) Add(rt *Route) {
	r.routes = append(r.routes, rt)
}

func (r *Router) Routes() []*Route {
	return r.routes
}

// Match returns the first route registered for method whose prefix covers path.
func (r *Router) Match(method string, path string) (*Route, bool) {
	m := strings.ToUpper(method)
	for _, rt := range r.routes {
		if _, ok := rt.Methods[m]; !ok {
			continue
		}
		prefix := strings.TrimSuffix(strings.TrimSpace(rt.Prefix), "/")
		if prefix == "" {
			return rt, true
		}

		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return rt, true
		}
	}
	return nil, false
}

// ServeHTTP dispatches to the matched route with the route on the context.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rt, ok := r.Match(req.Method, req.URL.Path)
	if !ok || rt.Handler == nil {
		gateway.WriteError(w, http.StatusNotFound, "no_route", "no matching route")
		return
	}
	rt.Handler.ServeHTTP(w, WithRoute(req, rt))
}

// --- context helpers ---
type ctxKey int

const keyRoute ctxKey = 0

func WithRoute(r *http.Request, rt *Route) *http.Request {
	ctx := context.WithValue(r.Context(), keyRoute, rt)
	return r.WithContext(ctx)
}

func RouteFrom(r *http.Request) (*Route, bool) {
	v := r.Context().Value(keyRoute)
	if v == nil {
		return nil, false
	}
	rt, ok := v.(*Route)
	return rt, ok
}
