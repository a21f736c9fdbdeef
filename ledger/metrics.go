package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes what the ledger does with delivered claims
type Metrics struct {
	claims  *prometheus.CounterVec
	history prometheus.Gauge
}

// NewMetrics creates the ledger metrics and registers them with 'reg'
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "at2",
			Subsystem: "ledger",
			Name:      "claims_total",
			Help:      "Delivered claims by the outcome of applying them.",
		}, []string{"outcome"}),
		history: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "at2",
			Subsystem: "ledger",
			Name:      "history_length",
			Help:      "Number of processed transactions kept for queries.",
		}),
	}

	reg.MustRegister(m.claims, m.history)
	return m
}

func (m *Metrics) observe(o Outcome, historyLen int) {
	if m == nil {
		return
	}

	m.claims.WithLabelValues(o.String()).Inc()
	m.history.Set(float64(historyLen))
}
