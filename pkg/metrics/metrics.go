package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "openletter"

// Submission outcomes.
const (
	OutcomeSubmitted     = "submitted"
	OutcomeInvalid       = "invalid"
	OutcomeNotConfigured = "not_configured"
	OutcomeStoreError    = "store_error"
	OutcomeSendFailed    = "send_failed"
	OutcomeSendUnclear   = "send_unclear"
)

// Verification outcomes.
const (
	OutcomeVerified        = "verified"
	OutcomeAlreadyVerified = "already_verified"
	OutcomeMissingToken    = "missing_token"
	OutcomeUnknownToken    = "unknown_token"
	OutcomeError           = "error"
)

type Metrics struct {
	Submissions   *prometheus.CounterVec
	Verifications *prometheus.CounterVec
	Compensations *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Signature submissions by outcome.",
		}, []string{"outcome"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification link visits by outcome.",
		}, []string{"outcome"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensating_deletes_total",
			Help:      "Rollbacks of signatures whose verification email was not confirmed sent.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Submissions, m.Verifications, m.Compensations)
	}

	return m
}
