package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCheckoutMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg, "order")

	m.ObserveSubmission("ok", 12)
	m.ObserveSubmission("ok", 8)
	m.ObserveSubmission("insufficient_stock", 3)
	m.ObserveEvaluation("preview")
	m.ObserveNotification("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("preview")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("failed")))
}

func TestCheckoutMetrics_NilSafe(t *testing.T) {
	var m *CheckoutMetrics
	assert.NotPanics(t, func() {
		m.ObserveSubmission("ok", 1)
		m.ObserveEvaluation("checkout")
		m.ObserveNotification("sent")
	})
}
