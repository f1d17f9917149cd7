// Package server exposes Prometheus metrics describing peer, room, and
// pairing activity. Metrics are registered once on the default registerer
// and scraped via the /metrics route.
package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "signaling"

type serverMetrics struct {
	connectedPeers    prometheus.Gauge
	activeRooms       prometheus.Gauge
	messagesTotal     *prometheus.CounterVec
	signalsRelayed    prometheus.Counter
	pairingsCompleted prometheus.Counter
	pairingFailures   prometheus.Counter
	malformedFrames   prometheus.Counter
}

var (
	globalMetrics     *serverMetrics
	globalMetricsOnce sync.Once
)

// metrics returns the process-wide metrics instance, creating it on first use.
func metrics() *serverMetrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = newServerMetrics(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

func newServerMetrics(registry prometheus.Registerer) *serverMetrics {
	factory := promauto.With(registry)

	return &serverMetrics{
		connectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_peers",
			Help:      "Number of peers currently registered with the hub",
		}),

		activeRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_rooms",
			Help:      "Number of rooms with at least one member",
		}),

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Total inbound messages dispatched, by message type",
		}, []string{"type"}),

		signalsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signals_relayed_total",
			Help:      "Total signal frames forwarded to their receiver",
		}),

		pairingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pairings_completed_total",
			Help:      "Total handshake pairings completed by code join",
		}),

		pairingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pairing_failures_total",
			Help:      "Total handshake-begin operations that failed to allocate a code",
		}),

		malformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "malformed_frames_total",
			Help:      "Total frames that failed to decode and closed their connection",
		}),
	}
}
