package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeVerified = "verified"
	OutcomeMismatch = "mismatch"
	OutcomeError    = "error"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_orders_created_total",
		Help: "Gateway orders created successfully.",
	})

	OrdersFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_orders_failed_total",
		Help: "Order creation attempts that failed, by reason.",
	}, []string{"reason"})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_signature_verifications_total",
		Help: "Checkout signature verifications, by outcome.",
	}, []string{"outcome"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settlements_total",
		Help: "Settlement attempts, by source and result.",
	}, []string{"source", "result"})

	GatewayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payments_gateway_order_seconds",
		Help:    "Latency of gateway order creation calls.",
		Buckets: prometheus.DefBuckets,
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
