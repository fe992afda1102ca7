/*
Package monitor is repmgrd's main loop: Daemon.Run dispatches once to a
role-specific ticking loop (primary.go, standby.go, witness.go) based on
the local node's registered type. Reload swaps the configuration only;
the loop chosen at startup keeps running if the registered type changes.

Each loop owns a health.Checker against its upstream (standby), its
primary (witness) or itself (primary). The standby loop also writes
monitoring_history rows to its primary and, on sustained upstream
failure, hands off to pkg/failover to run an election. State tracks the
daemon's own normal/degraded view independently of Role.
*/
package monitor
