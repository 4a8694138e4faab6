package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/wabridge/internal/domain/session/model"
)

var (
	sessionsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wabridge_sessions",
			Help: "Registered sessions by connection status.",
		},
		[]string{"status"},
	)

	sessionStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_session_starts_total",
			Help: "Session start outcomes.",
		},
		[]string{"result"},
	)

	sessionClosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_session_closes_total",
			Help: "Protocol connection closes by reason and resulting action.",
		},
		[]string{"reason", "action"},
	)

	reconnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_reconnect_attempts_total",
			Help: "Reconnect scheduling outcomes.",
		},
		[]string{"outcome"},
	)

	reconnectDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wabridge_reconnect_delay_seconds",
			Help:    "Backoff delay chosen before a reconnect attempt.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
	)

	pairingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_pairing_requests_total",
			Help: "Pairing code request chains by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_messages_sent_total",
			Help: "Outbound message sends by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	enrichmentFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_enrichment_failures_total",
			Help: "Inbound message enrichment steps that failed and were skipped.",
		},
		[]string{"step"},
	)

	echoesSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wabridge_echoes_suppressed_total",
			Help: "Protocol echoes of self-sent messages dropped by the dedup set.",
		},
	)
)

func recordSessionGauge(counts map[model.Status]int) {
	for status, n := range counts {
		sessionsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
