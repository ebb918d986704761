package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ragchat/gateway/internal/gatewayerr"
)

// loggingMiddleware logs one line per request after it completes and
// reports the request to Prometheus. Grounded on the teacher's
// pkg/server.loggingMiddleware: it never wraps ResponseWriter directly
// (chi's WrapResponseWriter instead), since a naive wrap breaks
// http.Flusher for the SSE routes.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		duration := time.Since(start)
		s.logger.Debug("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", duration,
		)
		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, fmt.Sprintf("%d", ww.Status())).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(duration.Seconds())
		}
	})
}

// recoverMiddleware turns a panic in any handler into a 500 instead of
// tearing down the whole process. The stack is logged since that's the one
// case a client's error response can never carry enough detail on its own.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "error", rec, "stack", string(debug.Stack()))
				writeError(w, s.logger, gatewayerr.NewInternal(fmt.Errorf("%v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// routePattern returns the matched chi route pattern for metrics labeling,
// falling back to the raw path so unmatched requests (404s) still label
// sanely.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
