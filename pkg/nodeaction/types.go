// Package nodeaction implements the one-shot control-tool operations a
// cluster operator runs by hand or over SSH: status, check, service,
// rejoin, control, and startup. Every function takes the dependencies
// it needs explicitly rather than reaching for a singleton, the same
// shape pkg/monitor's Daemon constructor uses.
package nodeaction

import "time"

// ShutdownState is the token IsShutdownCleanly and Status report.
type ShutdownState string

const (
	StateRunning         ShutdownState = "RUNNING"
	StateShuttingDown    ShutdownState = "SHUTTING_DOWN"
	StateShutdown        ShutdownState = "SHUTDOWN"
	StateUncleanShutdown ShutdownState = "UNCLEAN_SHUTDOWN"
	StateUnknown         ShutdownState = "UNKNOWN"
)

// ShutdownReport is IsShutdownCleanly's result: the engine's own
// control-file state token, plus the last checkpoint LSN when the
// shutdown was clean.
type ShutdownReport struct {
	State          ShutdownState
	LastCheckpoint string
}

// StatusReport is what `node status` prints: the node's own registered
// record plus its live shutdown/recovery state.
type StatusReport struct {
	NodeID    int32
	NodeName  string
	Type      string
	Upstream  int32
	Shutdown  ShutdownReport
	Timestamp time.Time
}

// ServiceAction is the logical action `node service` translates into a
// configured shell command.
type ServiceAction string

const (
	ServiceStart   ServiceAction = "start"
	ServiceStop    ServiceAction = "stop"
	ServiceRestart ServiceAction = "restart"
	ServiceReload  ServiceAction = "reload"
	ServicePromote ServiceAction = "promote"
)

// ControlAction is a diagnostic toggle on a running standby. Both values
// act on WAL replay, not on the WAL receiver process: disable pauses
// replay and enable resumes it (see Control).
type ControlAction string

const (
	ControlEnableWALReceiver  ControlAction = "enable_walreceiver"
	ControlDisableWALReceiver ControlAction = "disable_walreceiver"
)

// RejoinOptions configures `node rejoin`.
type RejoinOptions struct {
	UpstreamConninfo string
	ResyncCommand    string
	Wait             bool
	WaitTimeout      time.Duration
	AllowBlockResync bool
}
