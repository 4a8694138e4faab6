// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds Prometheus collectors shared by infrastructure packages.
// Domain packages register their own collectors next to the code that uses them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wabridge_circuit_breaker_state",
		Help: "Circuit breaker state by component (1 for the active state, 0 otherwise)",
	}, []string{"component", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wabridge_circuit_breaker_trips_total",
		Help: "Transitions to the open state by component and reason",
	}, []string{"component", "reason"})

	breakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wabridge_circuit_breaker_rejections_total",
		Help: "Calls short-circuited while the breaker was open",
	}, []string{"component"})
)

var breakerStates = [...]string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(component, s).Set(v)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when a breaker opens.
func RecordCircuitBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}

// RecordCircuitBreakerRejection counts a call refused by an open breaker.
func RecordCircuitBreakerRejection(component string) {
	breakerRejections.WithLabelValues(component).Inc()
}
