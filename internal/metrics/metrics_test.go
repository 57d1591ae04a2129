package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ActionAdmitted("send_message", "sms")
	m.ActionAdmitted("send_message", "sms")
	m.ActionDenied("rate_limit", "maxActionsPerDay")
	m.ProviderCall("telephony", nil, 10*time.Millisecond)
	m.ProviderCall("telephony", errors.New("down"), 10*time.Millisecond)
	m.SagaOutcome("provision", "compensated")
	m.DeadLetter("sms", "provider_error")
	m.ObserveHTTP("GET", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActionsAdmitted.WithLabelValues("send_message", "sms")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsDenied.WithLabelValues("rate_limit", "maxActionsPerDay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("telephony", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("telephony", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SagaOutcomes.WithLabelValues("provision", "compensated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadLetters.WithLabelValues("sms", "provider_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "200")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ActionAdmitted("send_message", "sms")
		m.ActionDenied("compliance", "dnc")
		m.ProviderCall("email", nil, 0)
		m.SagaOutcome("provision", "completed")
		m.SagaStepFailed("provision", "phone")
		m.DeadLetter("email", "provider_error")
		m.ObserveHTTP("POST", 500, 0)
	})
}
