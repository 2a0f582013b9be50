package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"agent-hub/internal/infra/api/apiv1"
)

const maxBodyBytes = 1 << 20

// RouterOptions wires the management surface.
type RouterOptions struct {
	// API is nil for processes that only expose /health and /metrics.
	API            *apiv1.Server
	Auth           *AuthManager
	RequestTimeout time.Duration
	// Ready reports dependency health for /health. Nil means always ready.
	Ready func(r *http.Request) error
}

func NewRouter(opts RouterOptions, logger *zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(logger), RequestLog(logger), LimitBody(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(req); err != nil {
				http.Error(w, "unavailable: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if opts.API != nil {
		r.Group(func(r chi.Router) {
			if opts.Auth != nil {
				r.Use(opts.Auth.Middleware)
			}
			// sync runs carry their own deadline
			r.Use(skipTimeoutForRuns(opts.RequestTimeout))
			apiv1.RegisterAPIV1(r, opts.API)
		})
	}
	return r
}

func skipTimeoutForRuns(d time.Duration) func(http.Handler) http.Handler {
	timeout := Timeout(d)
	return func(next http.Handler) http.Handler {
		bounded := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && isRunPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			bounded.ServeHTTP(w, r)
		})
	}
}

func isRunPath(p string) bool {
	return strings.HasSuffix(strings.TrimSuffix(p, "/"), "/runs")
}
