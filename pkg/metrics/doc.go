/*
Package metrics exposes repmgrd's internal state as Prometheus metrics
and backs the daemon's /health, /ready, and /live HTTP endpoints.

# Metrics

Gauges track point-in-time state. Once started, Collector refreshes the
role and voting-term gauges on a 15 second tick. pkg/monitor sets the
role at startup, the monitoring state whenever it changes, and the two
replication-lag gauges as its standby loop computes them; pkg/failover
sets the voting term when an election increments it:

  - repmgrd_node_role: local node's registered role
  - repmgrd_monitoring_state: daemon's normal/degraded state
  - repmgrd_replication_lag_bytes, repmgrd_replication_lag_seconds
  - repmgrd_voting_term: current value of the shared voting term

Counters are bumped by the packages that own the events they count
(pkg/failover for failovers/promotions, pkg/monitor for reconnect
attempts) and never reset for the life of the process:

  - repmgrd_failovers_total, repmgrd_promotions_total
  - repmgrd_reconnect_attempts_total

Handler returns the standard promhttp handler for mounting at /metrics.

# Health

HealthChecker tracks a small set of named components (currently
"catalog" and "monitor", the two a repmgrd process cannot run without)
and exposes them through HealthHandler, ReadyHandler, and
LivenessHandler, matching the conventional Kubernetes liveness/readiness
probe split: liveness only confirms the process is scheduling goroutines,
readiness additionally requires every critical component to report healthy.

# Timer

Timer is a small helper for feeding elapsed durations into a
histogram without repeating time.Since boilerplate at each call site.
*/
package metrics
