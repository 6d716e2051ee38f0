package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type CheckoutMetrics struct {
	Submissions   *prometheus.CounterVec
	Evaluations   *prometheus.CounterVec
	Latency       prometheus.Histogram
	Notifications *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer, service string) *CheckoutMetrics {
	m := &CheckoutMetrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: service,
			Name:      "checkout_submissions_total",
			Help:      "Checkout submissions by outcome.",
		}, []string{"outcome"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: service,
			Name:      "eligibility_evaluations_total",
			Help:      "Eligibility engine evaluations by caller.",
		}, []string{"source"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: service,
			Name:      "checkout_duration_ms",
			Help:      "Checkout latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: service,
			Name:      "merchant_notifications_total",
			Help:      "Merchant notifications by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Submissions, m.Evaluations, m.Latency, m.Notifications)
	return m
}

// The methods below are nil-safe so callers can run without metrics.

func (m *CheckoutMetrics) ObserveSubmission(outcome string, ms float64) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
	m.Latency.Observe(ms)
}

func (m *CheckoutMetrics) ObserveEvaluation(source string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(source).Inc()
}

func (m *CheckoutMetrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
