package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhero_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payhero_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	// Checkouts counts checkout attempts by result: accepted, invalid, gateway_error, store_error.
	Checkouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhero_checkouts_total",
		Help: "STK push checkouts by result",
	}, []string{"result"})

	// Callbacks counts processed provider results by outcome.
	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhero_callbacks_total",
		Help: "Provider callbacks by outcome",
	}, []string{"outcome"})

	CreditedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payhero_credited_amount_total",
		Help: "Sum of all amounts credited to balances",
	})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payhero_gateway_request_duration_seconds",
		Help:    "Latency of outbound PayHero API calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
	}, []string{"operation", "status"})

	// Reconciled counts intents touched by the reconciliation sweep by result.
	Reconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhero_reconciled_intents_total",
		Help: "Intents processed by the reconciliation sweep",
	}, []string{"result"})
)

// Middleware records request count and latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		route := c.Route().Path
		httpReqTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpLatency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the default Prometheus registry.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
