// Package metrics holds the prometheus collectors of the service. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "certify"

type Collector struct {
	ledgerDuration *prometheus.HistogramVec
	issuances      *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	challenges     *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ledgerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_call_duration_seconds",
			Help:      "Duration of ledger calls, including confirmation waits.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"op", "result"}),
		issuances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issuances_total",
			Help:      "Certificate issuance attempts by outcome.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Certificate verifications by status.",
		}, []string{"status"}),
		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_challenges_total",
			Help:      "Wallet challenge events by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.ledgerDuration,
		c.issuances,
		c.verifications,
		c.challenges,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// ObserveLedger records a ledger call that started at start.
func (c *Collector) ObserveLedger(op string, start time.Time, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ledgerDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (c *Collector) CountIssuance(result string) {
	if c == nil {
		return
	}
	c.issuances.WithLabelValues(result).Inc()
}

func (c *Collector) CountVerification(status string) {
	if c == nil {
		return
	}
	c.verifications.WithLabelValues(status).Inc()
}

func (c *Collector) CountChallenge(outcome string) {
	if c == nil {
		return
	}
	c.challenges.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
