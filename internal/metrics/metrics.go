// Package metrics defines the Prometheus counters exported by authgate.
//
// Metrics are registered against an explicit prometheus.Registerer so tests
// can use a fresh registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authgate"

// Result label values.
const (
	ResultSuccess            = "success"
	ResultValidation         = "validation"
	ResultDuplicate          = "duplicate"
	ResultInvalidCredentials = "invalid_credentials"
	ResultError              = "error"
)

type Metrics struct {
	// RegistrationsTotal counts registration attempts by result.
	RegistrationsTotal *prometheus.CounterVec
	// LoginsTotal counts authentication attempts by result.
	LoginsTotal *prometheus.CounterVec
	// LogoutsTotal counts logout calls that reached the session store.
	LogoutsTotal prometheus.Counter
	// SessionsPurgedTotal counts expired sessions removed by the purge loop.
	SessionsPurgedTotal prometheus.Counter
}

// New creates and registers all counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Total number of registration attempts, labelled by result.",
			},
			[]string{"result"},
		),
		LoginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Total number of login attempts, labelled by result.",
			},
			[]string{"result"},
		),
		LogoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Total number of logouts.",
		}),
		SessionsPurgedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_purged_total",
			Help:      "Total number of expired sessions removed.",
		}),
	}
}

func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLogout() {
	if m == nil {
		return
	}
	m.LogoutsTotal.Inc()
}

func (m *Metrics) ObservePurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsPurgedTotal.Add(float64(n))
}
