package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holdgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holdgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holdgate_admissions_total",
			Help: "Completion admission decisions.",
		},
		[]string{"outcome"}, // admitted, no_credit, over_estimate
	)

	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holdgate_settlements_total",
			Help: "Completed settlements.",
		},
		[]string{"mode"}, // sync, stream, stream_interrupted
	)

	SettlementFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "holdgate_settlement_failures_total",
			Help: "Settlements whose ledger write failed after the response was delivered.",
		},
	)

	SettledCostUSD = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "holdgate_settled_cost_usd_total",
			Help: "Sum of settled completion cost in USD.",
		},
	)

	UpstreamFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holdgate_upstream_failures_total",
			Help: "Upstream completion failures.",
		},
		[]string{"reason"}, // status, transport, timeout, stream_error
	)

	OracleFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holdgate_oracle_fallbacks_total",
			Help: "Oracle reads that degraded to a fallback value.",
		},
		[]string{"oracle"}, // balance, supply
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holdgate_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AdmissionsTotal,
		SettlementsTotal,
		SettlementFailuresTotal,
		SettledCostUSD,
		UpstreamFailuresTotal,
		OracleFallbacksTotal,
		RateLimitRejectionsTotal,
	)
}
