package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"pairchat/internal/observability"

	"github.com/go-chi/chi/v5"
)

// Metrics records request counts and latencies. Requests are labeled by the
// chi route pattern rather than the raw path so /messages/{peer} stays one
// series per route instead of one per conversation.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			status := strconv.Itoa(ww.status)
			elapsed := time.Since(start).Seconds()
			observability.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(elapsed)
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade pass through the instrumented writer.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
