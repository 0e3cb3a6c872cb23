// Package metrics exposes Prometheus collectors for the web app.
package metrics

import (
	"gatehouse/internal/action"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry
	actions  *prometheus.CounterVec
	logins   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_actions_total",
			Help: "Dispatched admin actions by action name and outcome.",
		}, []string{"action", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(m.actions, m.logins)
	return m
}

// ObserveAction counts a dispatch result. Unknown action names are folded
// into one label value to bound cardinality.
func (m *Metrics) ObserveAction(res action.Result) {
	name := res.Action
	if res.Kind == action.KindInvalidAction {
		name = "invalid"
	}
	outcome := "success"
	if !res.Success {
		outcome = string(res.Kind)
	}
	m.actions.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) ObserveLogin(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}
