// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Keyward counters.
type Metrics struct {
	FlowsTotal         *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	GateDecisionsTotal *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyward_auth_flow_total",
				Help: "Authentication flow invocations by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyward_http_requests_total",
				Help: "HTTP requests by method, route pattern and status",
			},
			[]string{"method", "route", "status"},
		),
		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyward_gate_decisions_total",
				Help: "Session gate decisions by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(m.FlowsTotal, m.HTTPRequestsTotal, m.GateDecisionsTotal)
	return m
}

// ObserveFlow counts one flow outcome. It satisfies auth.FlowObserver.
func (m *Metrics) ObserveFlow(flow, outcome string) {
	m.FlowsTotal.WithLabelValues(flow, outcome).Inc()
}

// ObserveHTTPRequest counts one served request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObserveGate counts one gate decision.
func (m *Metrics) ObserveGate(outcome string) {
	m.GateDecisionsTotal.WithLabelValues(outcome).Inc()
}
