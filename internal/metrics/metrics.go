package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts decoded transactions, their actions and the faults raised
// while decoding them.
type Metrics struct {
	registry     *prometheus.Registry
	transactions *prometheus.CounterVec
	actions      *prometheus.CounterVec
	faults       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfs_proxy",
			Name:      "transactions_total",
			Help:      "Transaction requests by protocol version and outcome.",
		}, []string{"version", "outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfs_proxy",
			Name:      "actions_total",
			Help:      "Transaction actions by protocol version and kind.",
		}, []string{"version", "kind"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfs_proxy",
			Name:      "faults_total",
			Help:      "Exception reports by exception code.",
		}, []string{"code"}),
	}
	m.registry.MustRegister(m.transactions, m.actions, m.faults)
	return m
}

func (m *Metrics) Transaction(version, outcome string) {
	m.transactions.WithLabelValues(version, outcome).Inc()
}

func (m *Metrics) Action(version, kind string) {
	m.actions.WithLabelValues(version, kind).Inc()
}

func (m *Metrics) Fault(code string) {
	m.faults.WithLabelValues(code).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
