// Package observability holds the Fiber access-log and Prometheus middleware
// plus the domain counters the services increment.
//
// HTTP label cardinality stays bounded: the path label is the registered
// route pattern (e.g. /api/cases/:id), not the raw URL.
package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	caseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_transitions_total",
			Help: "Case request decisions by outcome (approved, rejected).",
		},
		[]string{"outcome"},
	)

	notificationsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Outbox delivery attempts by kind and result (sent, retry, failed, skipped).",
		},
		[]string{"kind", "result"},
	)

	paymentsConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_confirmed_total",
			Help: "Payments moved to completed, by source (confirm, webhook, mock, manual).",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		httpReqs, httpLat, httpInflight,
		caseTransitions, notificationsDelivered, paymentsConfirmed,
	)
}

// CaseTransition counts an approve/reject decision.
func CaseTransition(outcome string) { caseTransitions.WithLabelValues(outcome).Inc() }

// NotificationDelivered counts one outbox attempt.
func NotificationDelivered(kind, result string) {
	notificationsDelivered.WithLabelValues(kind, result).Inc()
}

// PaymentConfirmed counts a payment moving to completed.
func PaymentConfirmed(source string) { paymentsConfirmed.WithLabelValues(source).Inc() }

// Metrics instruments every request. Errors returned by the chain are
// rendered through the app's ErrorHandler first so the recorded status is final.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		path := routePath(c)
		method := c.Method()
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Response().StatusCode())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return nil
	}
}

// routePath is the matched route pattern, or the raw path when nothing matched.
func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	return c.Path()
}
