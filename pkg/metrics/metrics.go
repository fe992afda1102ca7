package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NodeRole reports the local node's registered role as a gauge
	// with one constant-1 series per role label, matching the pattern
	// repmgr's --csv role reporting already uses (primary/standby/witness).
	NodeRole = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repmgrd_node_role",
			Help: "The local node's registered role (1 for the active role, 0 otherwise)",
		},
		[]string{"role"},
	)

	// MonitoringState reports the daemon's normal/degraded state the
	// same way, one series per state label.
	MonitoringState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repmgrd_monitoring_state",
			Help: "The monitoring daemon's current state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	ReplicationLagBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repmgrd_replication_lag_bytes",
			Help: "Bytes between the primary's current WAL position and this standby's receive position",
		},
	)

	ReplicationLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repmgrd_replication_lag_seconds",
			Help: "Seconds between the primary's last commit and this standby's last replay",
		},
	)

	VotingTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repmgrd_voting_term",
			Help: "Current value of the cluster's last-writer-wins voting term",
		},
	)

	FailoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repmgrd_failovers_total",
			Help: "Total number of failover elections run by this node",
		},
	)

	PromotionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repmgrd_promotions_total",
			Help: "Total number of times this node has promoted itself to primary",
		},
	)

	ReconnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repmgrd_reconnect_attempts_total",
			Help: "Total number of attempts to reconnect to an unreachable upstream node",
		},
	)

	// TickDuration observes how long one role loop iteration took,
	// labeled by role, via a Timer started at the top of each tick.
	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "repmgrd_tick_duration_seconds",
			Help: "Duration of one monitoring loop iteration",
		},
		[]string{"role"},
	)

	// ElectionDuration observes how long a failover election took from
	// collect through reset, via a Timer started at RunElection's entry.
	ElectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "repmgrd_election_duration_seconds",
			Help: "Duration of a failover election, from candidate collection through voting-state reset",
		},
	)
)

func init() {
	prometheus.MustRegister(NodeRole)
	prometheus.MustRegister(MonitoringState)
	prometheus.MustRegister(ReplicationLagBytes)
	prometheus.MustRegister(ReplicationLagSeconds)
	prometheus.MustRegister(VotingTerm)
	prometheus.MustRegister(FailoversTotal)
	prometheus.MustRegister(PromotionsTotal)
	prometheus.MustRegister(ReconnectAttemptsTotal)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(ElectionDuration)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetRole zeroes every known role series and sets role to 1, so a
// role change doesn't leave the previous role's series stuck at 1.
func SetRole(role string, known []string) {
	for _, r := range known {
		NodeRole.WithLabelValues(r).Set(0)
	}
	NodeRole.WithLabelValues(role).Set(1)
}

// SetState is SetRole's counterpart for the daemon's normal/degraded state.
func SetState(state string, known []string) {
	for _, s := range known {
		MonitoringState.WithLabelValues(s).Set(0)
	}
	MonitoringState.WithLabelValues(state).Set(1)
}
