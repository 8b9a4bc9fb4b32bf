// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "phishguard"

var (
	// DecisionsTotal counts admission decisions by verdict and the stage that produced them.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of admission decisions",
		},
		[]string{"decision", "source"},
	)

	// CheckDuration measures admission check latency.
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of admission checks in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// HeuristicHitsTotal counts heuristics that fired.
	HeuristicHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heuristic_hits_total",
			Help:      "Total number of heuristic checks that contributed to a score",
		},
		[]string{"check"},
	)

	// HeuristicErrorsTotal counts heuristics that failed internally and were treated as inconclusive.
	HeuristicErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heuristic_errors_total",
			Help:      "Total number of inconclusive heuristic checks",
		},
		[]string{"check"},
	)

	// BlacklistRefreshTotal counts blacklist refresh attempts.
	BlacklistRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blacklist_refresh_total",
			Help:      "Total number of blacklist refresh attempts",
		},
		[]string{"status"},
	)

	// BlacklistEntries tracks the size of the active blacklist snapshot.
	BlacklistEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blacklist_entries",
			Help:      "Number of entries in the active blacklist snapshot",
		},
		[]string{"kind"},
	)

	// DecisionCacheTotal counts decision cache lookups.
	DecisionCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_total",
			Help:      "Total number of decision cache lookups",
		},
		[]string{"result"},
	)

	// ActiveConnections tracks connections currently being handled.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of client connections currently being handled",
		},
	)

	// ConnectionsTotal counts finished connections by terminal outcome.
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of handled connections",
		},
		[]string{"outcome"},
	)

	// TunnelBytesTotal counts bytes relayed through CONNECT tunnels.
	TunnelBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tunnel_bytes_total",
			Help:      "Total number of bytes relayed through tunnels",
		},
		[]string{"direction"},
	)

	// SinkErrorsTotal counts persistence and alert failures.
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Total number of failed sink deliveries",
		},
		[]string{"sink"},
	)
)

// RecordDecision records an admission decision.
func RecordDecision(decision, source string, duration float64) {
	DecisionsTotal.WithLabelValues(decision, source).Inc()
	CheckDuration.WithLabelValues(source).Observe(duration)
}

// RecordHeuristic records a heuristic that fired or failed.
func RecordHeuristic(check string, fired bool, failed bool) {
	if fired {
		HeuristicHitsTotal.WithLabelValues(check).Inc()
	}
	if failed {
		HeuristicErrorsTotal.WithLabelValues(check).Inc()
	}
}

// RecordRefresh records a blacklist refresh attempt and, on success, the new snapshot size.
func RecordRefresh(ok bool, domains, networks int) {
	if !ok {
		BlacklistRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	BlacklistRefreshTotal.WithLabelValues("success").Inc()
	BlacklistEntries.WithLabelValues("domain").Set(float64(domains))
	BlacklistEntries.WithLabelValues("cidr").Set(float64(networks))
}

// RecordCacheLookup records a decision cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		DecisionCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	DecisionCacheTotal.WithLabelValues("miss").Inc()
}

// RecordTunnel records bytes relayed in each direction.
func RecordTunnel(upstream, downstream int64) {
	TunnelBytesTotal.WithLabelValues("upstream").Add(float64(upstream))
	TunnelBytesTotal.WithLabelValues("downstream").Add(float64(downstream))
}

// RecordSinkError records a failed delivery to the named sink.
func RecordSinkError(sink string) {
	SinkErrorsTotal.WithLabelValues(sink).Inc()
}
