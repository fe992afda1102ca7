/*
Package log provides structured logging for repmgrd and repmgr using zerolog.

The log package wraps zerolog to give every binary JSON-structured logging
with component-specific child loggers, configurable log levels, and helper
functions for the logging patterns used throughout the monitoring daemon
and the control CLI.

# Usage

Initializing the logger:

	import "github.com/cuemby/repmgrd/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	monitorLog := log.WithComponent("monitor")
	monitorLog.Info().Msg("starting monitoring loop")

	failoverLog := log.WithComponent("failover").
		With().Int32("node_id", self.NodeID).Logger()
	failoverLog.Warn().Msg("upstream connection lost, starting election")

Context helpers:

	log.WithNodeID(3).Info().Msg("node registered")
	log.WithUpstreamID(1).Debug().Msg("checking upstream connection")
	log.WithTerm(7).Info().Msg("announcing candidature")

# Log levels

Debug is for development and step-by-step tracing of the monitoring loop.
Info is the default production level and covers role transitions, voting
outcomes and rejoin attempts. Warn covers conditions that do not yet
require action, such as a missed upstream heartbeat. Error covers failed
operations that need investigation. Fatal exits the process and is used
only for unrecoverable startup failures (bad config, no catalog
connection).

# Security

Never log conninfo strings or SSH passwords directly; redact the password
component before logging a connection string.
*/
package log
