package router

import (
	"strings"

	"github.com/Brownie44l1/mdb-httpd/internal/response"
	"github.com/Brownie44l1/mdb-httpd/internal/server"
)

// Kind is the way a route compares its pattern with the request path.
type Kind int

const (
	KindExact Kind = iota
	KindPrefix
)

func (k Kind) String() string {
	if k == KindPrefix {
		return "prefix"
	}
	return "exact"
}

// Route represents a single route
type Route struct {
	Kind    Kind
	Pattern string
	Handler server.Handler
}

func (rt *Route) matches(path string) bool {
	if rt.Kind == KindPrefix {
		return strings.HasPrefix(path, rt.Pattern)
	}
	return path == rt.Pattern
}

// Router dispatches validated requests on their routable path. Exact
// routes are tried first, then prefix routes, each in registration order.
// Anything left goes to the fallback.
type Router struct {
	exact    []*Route
	prefix   []*Route
	fallback server.Handler
}

// New creates a new router
func New() *Router {
	return &Router{}
}

// Exact registers h for requests whose path equals path.
func (r *Router) Exact(path string, h server.Handler) {
	r.exact = append(r.exact, &Route{Kind: KindExact, Pattern: path, Handler: h})
}

// Prefix registers h for requests whose path starts with prefix.
func (r *Router) Prefix(prefix string, h server.Handler) {
	r.prefix = append(r.prefix, &Route{Kind: KindPrefix, Pattern: prefix, Handler: h})
}

// Fallback sets the handler for paths no route matches.
func (r *Router) Fallback(h server.Handler) {
	r.fallback = h
}

// Match finds the route for path. It returns nil when only the fallback
// (if any) applies.
func (r *Router) Match(path string) *Route {
	for _, rt := range r.exact {
		if rt.matches(path) {
			return rt
		}
	}
	for _, rt := range r.prefix {
		if rt.matches(path) {
			return rt
		}
	}
	return nil
}

// ServeHTTP implements server.Handler.
func (r *Router) ServeHTTP(ctx *server.Context) {
	if rt := r.Match(ctx.Path()); rt != nil {
		rt.Handler.ServeHTTP(ctx)
		return
	}
	if r.fallback != nil {
		r.fallback.ServeHTTP(ctx)
		return
	}
	ctx.Error(response.StatusNotFound)
}

// KeyFromURI returns the text after the final '=' in uri, or "" if there
// is none. No percent-decoding is done.
func KeyFromURI(uri string) string {
	i := strings.LastIndexByte(uri, '=')
	if i < 0 {
		return ""
	}
	return uri[i+1:]
}
