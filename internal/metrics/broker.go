// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	brokerDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wabridge_broker_deliveries_total",
		Help: "Inbound command deliveries by driver and outcome (ack, nack_decode, nack_handler, dropped)",
	}, []string{"driver", "outcome"})

	brokerPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wabridge_broker_publish_total",
		Help: "Outbound event publishes by driver and outcome",
	}, []string{"driver", "outcome"})

	brokerConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wabridge_broker_connected",
		Help: "Whether the broker transport is currently connected (1) or not (0)",
	}, []string{"driver"})

	brokerReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wabridge_broker_reconnect_attempts_total",
		Help: "Broker connection attempts that failed and were retried",
	}, []string{"driver"})

	busDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wabridge_bus_dropped_total",
		Help: "In-memory transport message drops by reason",
	}, []string{"reason"})
)

// RecordDelivery records the outcome of one inbound command delivery.
func RecordDelivery(driver, outcome string) {
	brokerDeliveries.WithLabelValues(driver, outcome).Inc()
}

// RecordPublish records the outcome of one event publish.
func RecordPublish(driver string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	brokerPublishes.WithLabelValues(driver, outcome).Inc()
}

// SetBrokerConnected flips the connection gauge for a driver.
func SetBrokerConnected(driver string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	brokerConnected.WithLabelValues(driver).Set(v)
}

// IncBrokerReconnect counts a failed connection attempt.
func IncBrokerReconnect(driver string) {
	brokerReconnects.WithLabelValues(driver).Inc()
}

// IncBusDropReason records a dropped in-memory message.
func IncBusDropReason(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	busDropped.WithLabelValues(reason).Inc()
}
