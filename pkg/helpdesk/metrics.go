package helpdesk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_api_requests_total",
		Help: "Gateway calls by HTTP method and outcome (ok or error kind).",
	}, []string{"method", "outcome"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_api_retries_total",
		Help: "Internal retries for rate-limited and transient failures.",
	})

	limiterWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_api_limiter_waits_total",
		Help: "Calls that blocked on the local token bucket.",
	})
)
