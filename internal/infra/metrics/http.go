package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal, httpAuthFailuresTotal) }

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests by route pattern and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpAuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_auth_failures_total",
			Help: "Rejected API credentials.",
		},
		[]string{"reason"}, // missing, invalid_key, invalid_token
	)
)

func IncHTTPRequest(method, route string, code int) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func IncAuthFailure(reason string) {
	httpAuthFailuresTotal.WithLabelValues(norm(reason)).Inc()
}
