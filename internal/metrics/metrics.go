package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	ActionsAdmitted *prometheus.CounterVec
	ActionsDenied   *prometheus.CounterVec

	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec

	SagaOutcomes    *prometheus.CounterVec
	SagaFailedSteps *prometheus.CounterVec
	DeadLetters     *prometheus.CounterVec
}

// New registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_http_requests_total",
				Help: "HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActionsAdmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_actions_admitted_total",
				Help: "Communication actions that passed gating and were dispatched",
			},
			[]string{"action", "channel"},
		),
		ActionsDenied: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_actions_denied_total",
				Help: "Communication actions refused by a rate limit or compliance check",
			},
			[]string{"gate", "reason"}, // gate: rate_limit, compliance
		),
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_provider_calls_total",
				Help: "Outbound provider calls by capability and outcome",
			},
			[]string{"capability", "outcome"},
		),
		ProviderLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_provider_call_duration_seconds",
				Help:    "Outbound provider call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		SagaOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_saga_total",
				Help: "Saga runs by name and outcome",
			},
			[]string{"saga", "outcome"}, // outcome: completed, compensated, compensation_failed
		),
		SagaFailedSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_saga_failed_step_total",
				Help: "Saga failures by the step that failed",
			},
			[]string{"saga", "step"},
		),
		DeadLetters: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_dead_letters_total",
				Help: "Dead letters written by channel and reason",
			},
			[]string{"channel", "reason"},
		),
	}
}

func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ActionAdmitted(action, channel string) {
	if m == nil {
		return
	}
	m.ActionsAdmitted.WithLabelValues(action, channel).Inc()
}

func (m *Metrics) ActionDenied(gate, reason string) {
	if m == nil {
		return
	}
	m.ActionsDenied.WithLabelValues(gate, reason).Inc()
}

func (m *Metrics) ProviderCall(capability string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCalls.WithLabelValues(capability, outcome).Inc()
	m.ProviderLatency.WithLabelValues(capability).Observe(d.Seconds())
}

func (m *Metrics) SagaOutcome(saga, outcome string) {
	if m == nil {
		return
	}
	m.SagaOutcomes.WithLabelValues(saga, outcome).Inc()
}

func (m *Metrics) SagaStepFailed(saga, step string) {
	if m == nil {
		return
	}
	m.SagaFailedSteps.WithLabelValues(saga, step).Inc()
}

func (m *Metrics) DeadLetter(channel, reason string) {
	if m == nil {
		return
	}
	m.DeadLetters.WithLabelValues(channel, reason).Inc()
}
