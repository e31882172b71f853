package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts protocol outcomes. A nil *Metrics records nothing.
type Metrics struct {
	logins    *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	logouts   prometheus.Counter
	guard     *prometheus.CounterVec
}

// NewMetrics registers the auth counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kpauth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kpauth",
			Name:      "refreshes_total",
			Help:      "Trusted-device refresh attempts by result.",
		}, []string{"result"}),
		logouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kpauth",
			Name:      "logouts_total",
			Help:      "Logout requests.",
		}),
		guard: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kpauth",
			Name:      "session_guard_total",
			Help:      "Guarded requests by how they authenticated.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) logout() {
	if m != nil {
		m.logouts.Inc()
	}
}

func (m *Metrics) guarded(outcome string) {
	if m != nil {
		m.guard.WithLabelValues(outcome).Inc()
	}
}
