package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsNamespace is the Prometheus namespace for all gateway metrics.
const metricsNamespace = "collab"

// gatewayMetrics holds the Prometheus metrics for the gateway.
type gatewayMetrics struct {
	activeConnections prometheus.Gauge
	activeRooms       prometheus.Gauge
	connectionsTotal  prometheus.Counter
	handshakeFailures *prometheus.CounterVec
	updatesTotal      prometheus.Counter
	updateErrors      prometheus.Counter
	awarenessTotal    prometheus.Counter
	applyDuration     prometheus.Histogram
	framesDropped     *prometheus.CounterVec
	persistDrops      *prometheus.CounterVec
}

var (
	globalMetrics     *gatewayMetrics
	globalMetricsOnce sync.Once
)

// promMetrics returns the singleton metrics, registering them with the
// default registry on first use.
func promMetrics() *gatewayMetrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = initMetrics(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

func initMetrics(registry prometheus.Registerer) *gatewayMetrics {
	factory := promauto.With(registry)

	return &gatewayMetrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_connections",
			Help:      "Number of live WebSocket connections",
		}),

		activeRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_rooms",
			Help:      "Number of live rooms",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total connections that completed the handshake",
		}),

		handshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshake_failures_total",
			Help:      "Handshake failures by reason",
		}, []string{"reason"}),

		updatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_total",
			Help:      "Document updates accepted",
		}),

		updateErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "update_errors_total",
			Help:      "Document updates rejected as invalid",
		}),

		awarenessTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "awareness_total",
			Help:      "Awareness payloads relayed",
		}),

		applyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "update_apply_duration_seconds",
			Help:      "Time to apply and relay one update",
			Buckets:   prometheus.DefBuckets,
		}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped by reason",
		}, []string{"reason"}),

		persistDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "persist_drops_total",
			Help:      "Deltas dropped by the persistence bridge by reason",
		}, []string{"reason"}),
	}
}
