/*
Package health tracks whether a connection to a cluster node is still
answering, and applies hysteresis before reporting it down.

# Checkers

A Checker probes one pool.Conn using one of three strategies, selected
by config.Config.ConnectionCheckType:

  - ping: a protocol-level ping. Cheapest, and the default.
  - query: runs a SQL statement (SELECT 1 unless overridden) and
    treats any error as unhealthy. Exercises the planner/executor
    path, not just the wire protocol.
  - connection: asks the driver whether it still believes the socket
    is open, without a round trip. Cheapest and least reliable.

ConnChecker implements all three; the monitoring daemon builds one from
config, once at the start of the primary loop and on every tick of the
standby and witness loops.

# Status and hysteresis

Status accumulates consecutive Check results and only flips Healthy to
false once ConsecutiveFailures reaches Config.Retries — matching
repmgr's reconnect_attempts semantics, where a single dropped
connection does not by itself trigger a failover decision. A single
success clears the failure streak immediately; there is no separate
recovery threshold.

The monitoring daemon keeps one Status per role loop: for its upstream
on a standby, its primary on a witness, and its own connection on a
primary. On a standby or witness, Status.Healthy turning false is what
pkg/monitor treats as the signal to move from its "normal" to
"degraded" monitoring state; a primary stays "normal".
*/
package health
