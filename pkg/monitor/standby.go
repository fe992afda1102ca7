package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/failover"
	"github.com/cuemby/repmgrd/pkg/health"
	"github.com/cuemby/repmgrd/pkg/localfile"
	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/metrics"
	"github.com/cuemby/repmgrd/pkg/nodeaction"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/remote"
)

// runStandby implements the standby-node loop from §4.5: local and
// upstream sessions, per-tick replication refresh and monitoring
// record, upstream liveness checks with reconnect escalation, and a
// failover trigger once degraded time exceeds the configured
// threshold.
func (d *Daemon) runStandby(ctx context.Context, self *catalog.Node) error {
	logger := log.WithComponent("monitor").With().Str("role", "standby").Logger()

	selfConn, err := d.pl.Open(ctx, d.config().Conninfo)
	if err != nil {
		return err
	}
	defer selfConn.Close()

	if self.UpstreamNodeID == nil {
		logger.Error().Msg("standby has no registered upstream, cannot monitor")
		return nil
	}
	upstreamID := *self.UpstreamNodeID

	upstreamConn := d.dialUpstream(ctx, upstreamID, logger)
	defer func() {
		if upstreamConn != nil {
			upstreamConn.Close()
		}
	}()

	status := health.NewStatus()
	checkCfg := health.Config{Timeout: d.config().AsyncQueryTimeout, Retries: d.config().ReconnectAttempts}

	ticker := time.NewTicker(d.config().MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("standby loop stopping")
			return nil
		case <-ticker.C:
			timer := metrics.NewTimer()
			if d.stopping.Load() {
				return nil
			}

			if newID, newConn := d.checkFollow(ctx, self, upstreamID, upstreamConn, logger); newID != upstreamID {
				upstreamID, upstreamConn = newID, newConn
			}

			info, err := queryReplicationInfo(ctx, selfConn, upstreamID)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to refresh local replication info")
			} else {
				metrics.ReplicationLagSeconds.Set(info.LagSeconds)
				if d.cache != nil {
					_ = d.cache.PutReplicationInfo(self.ID, info)
				}
			}

			if upstreamConn == nil {
				upstreamConn = d.dialUpstream(ctx, upstreamID, logger)
			}

			var result health.Result
			if upstreamConn != nil {
				checker := newChecker(upstreamConn, d.config())
				result = checker.Check(ctx)
			} else {
				result = health.Result{Healthy: false, CheckedAt: time.Now(), Message: "no upstream connection"}
			}
			status.Update(result, checkCfg)

			if !status.Healthy {
				metrics.ReconnectAttemptsTotal.Inc()
				if upstreamConn != nil {
					upstreamConn.Close()
					upstreamConn = nil
				}
				d.handleUpstreamFailure(ctx, self, upstreamID, logger)
				timer.ObserveDurationVec(metrics.TickDuration, "standby")
				continue
			}

			d.setState(StateNormal)
			_ = d.cat.SetUpstreamLastSeen(ctx, upstreamID)

			if since, pending := d.pendingFollowSince(ctx, self.ID); pending {
				failover.UpgradePendingFollow(ctx, catalog.New(upstreamConn), self.ID, self.Name, upstreamID, since, d.config().DegradedMonitoringTimeout)
			}

			if info != nil {
				d.writeMonitoringRecord(ctx, upstreamConn, self.ID, upstreamID, info)
			}

			timer.ObserveDurationVec(metrics.TickDuration, "standby")
		}
	}
}

// checkFollow implements §4.6 step 7 from a sibling's side: every tick
// it asks the catalog whether a new primary has been published since
// the last check, and if so — and it isn't already the node being
// followed — rewrites its own upstream connection information and
// restarts replication against it, the way the manual "repmgr standby
// follow" command does by hand.
func (d *Daemon) checkFollow(ctx context.Context, self *catalog.Node, upstreamID int32, upstreamConn *pool.Conn, logger zerolog.Logger) (int32, *pool.Conn) {
	newPrimaryID, ok, err := d.cat.GetNewPrimary(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not check for a newly promoted primary")
		return upstreamID, upstreamConn
	}
	if !ok || newPrimaryID == upstreamID || newPrimaryID == self.ID {
		return upstreamID, upstreamConn
	}

	logger.Warn().Int32("new_primary_id", newPrimaryID).Int32("old_upstream_id", upstreamID).Msg("observed new primary, following")

	newPrimary, status, err := d.cat.GetNodeRecord(ctx, newPrimaryID)
	if err != nil || status != catalog.RecordFound {
		logger.Error().Err(err).Int32("new_primary_id", newPrimaryID).Msg("could not read new primary's node record, deferring follow")
		return upstreamID, upstreamConn
	}

	primaryConn, err := d.pl.Open(ctx, newPrimary.Conninfo)
	if err != nil {
		logger.Error().Err(err).Int32("new_primary_id", newPrimaryID).Msg("could not connect to new primary to follow")
		return upstreamID, upstreamConn
	}
	primaryCat := catalog.New(primaryConn)

	updated := *self
	updated.UpstreamNodeID = &newPrimaryID
	if err := primaryCat.UpdateNodeRecord(ctx, &updated); err != nil {
		logger.Error().Err(err).Msg("could not rewrite upstream_node_id on new primary")
		primaryConn.Close()
		return upstreamID, upstreamConn
	}
	*self = updated

	if upstreamConn != nil {
		upstreamConn.Close()
	}

	cfg := d.config()
	if cfg.FollowCommand != "" {
		if _, stderr, ok, err := remote.LocalCommand(ctx, cfg.FollowCommand); err != nil || !ok {
			logger.Warn().Err(err).Str("stderr", stderr).Msg("follow command failed")
		}
	} else if err := nodeaction.Service(ctx, cfg, d.pl, nodeaction.ServiceRestart, false); err != nil {
		logger.Warn().Err(err).Msg("could not restart service to rewire replication to new primary")
	}

	_ = primaryCat.RecordEvent(ctx, &catalog.Event{
		NodeID: self.ID, EventType: "standby_follow_started", Successful: true,
		Timestamp: time.Now(), Details: "rewrote upstream connection info after observing new primary",
	})

	return newPrimaryID, primaryConn
}

// pendingFollowSince reports whether nodeID's most recent event is a
// still-open repmgrd_follow_pending marker left by the election that
// promoted the primary this standby is now following, and if so, when
// it was recorded.
func (d *Daemon) pendingFollowSince(ctx context.Context, nodeID int32) (time.Time, bool) {
	events, err := d.cat.GetEvents(ctx, nodeID, 1)
	if err != nil || len(events) == 0 {
		return time.Time{}, false
	}
	if events[0].EventType != "repmgrd_follow_pending" {
		return time.Time{}, false
	}
	return events[0].Timestamp, true
}

func (d *Daemon) dialUpstream(ctx context.Context, upstreamID int32, logger zerolog.Logger) *pool.Conn {
	upstream, status, err := d.cat.GetNodeRecord(ctx, upstreamID)
	if err != nil || status != catalog.RecordFound {
		logger.Warn().Err(err).Int32("upstream_node_id", upstreamID).Msg("could not read upstream node record")
		return nil
	}
	conn, err := d.pl.Open(ctx, upstream.Conninfo)
	if err != nil {
		logger.Warn().Err(err).Int32("upstream_node_id", upstreamID).Msg("could not connect to upstream")
		return nil
	}
	return conn
}

// handleUpstreamFailure is called once the upstream health checker has
// crossed into unhealthy. It escalates state to degraded and only logs
// until the degraded-monitoring timeout has passed; past that timeout it
// runs a failover election, unless failover is manual or the daemon is
// paused, in which case it logs and waits for an operator.
func (d *Daemon) handleUpstreamFailure(ctx context.Context, self *catalog.Node, upstreamID int32, logger zerolog.Logger) {
	d.setState(StateDegraded)

	if d.degradedFor() < d.config().DegradedMonitoringTimeout {
		logger.Warn().Dur("degraded_for", d.degradedFor()).Msg("upstream unreachable, within reconnect window")
		return
	}

	if d.config().Failover != config.FailoverAutomatic {
		logger.Warn().Msg("degraded monitoring timeout exceeded, failover is manual, waiting for an operator")
		return
	}
	if paused, err := d.cat.RepmgrdIsPaused(ctx); err == nil && paused {
		logger.Warn().Msg("degraded monitoring timeout exceeded, repmgrd is paused, not starting an election")
		return
	}

	logger.Error().Msg("degraded monitoring timeout exceeded, starting failover election")

	siblings, err := d.cat.GetActiveSiblingNodeRecords(ctx, self.ID, upstreamID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to enumerate sibling nodes for election")
		return
	}

	candidate, err := d.localCandidate(ctx, self)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build local election candidate")
		return
	}

	selfConn, err := d.pl.Open(ctx, d.config().Conninfo)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open local connection for election")
		return
	}
	defer selfConn.Close()

	engine := d.failoverEngine()
	engine.BindSelf(selfConn)

	result, err := engine.RunElection(ctx, candidate, siblings)
	if err != nil {
		logger.Error().Err(err).Msg("failover election failed")
		return
	}
	if result.Promoted {
		logger.Info().Int32("new_primary_id", result.NewPrimaryID).Msg("election promoted a new primary")
	}
}

func (d *Daemon) localCandidate(ctx context.Context, self *catalog.Node) (failover.Candidate, error) {
	conn, err := d.pl.Open(ctx, d.config().Conninfo)
	if err != nil {
		return failover.Candidate{}, err
	}
	defer conn.Close()

	var raw string
	if err := conn.PG().QueryRow(ctx, `SELECT coalesce(pg_last_wal_receive_lsn()::text, pg_current_wal_lsn()::text)`).Scan(&raw); err != nil {
		return failover.Candidate{}, err
	}
	lsn, err := localfile.ParseLSN(raw)
	if err != nil {
		return failover.Candidate{}, err
	}

	return failover.Candidate{
		NodeID: self.ID, ReceiveLSN: lsn, Priority: self.Priority, Location: self.Location, Conninfo: self.Conninfo,
	}, nil
}

// writeMonitoringRecord pushes the standby's view of replication
// progress onto the primary's monitoring_history via the already-open
// upstream session, including the primary's current WAL position and
// the byte-valued receive/apply lag computed against it.
func (d *Daemon) writeMonitoringRecord(ctx context.Context, upstreamConn *pool.Conn, standbyID, primaryID int32, info *catalog.ReplicationInfo) {
	if upstreamConn == nil {
		return
	}
	rec := &catalog.MonitoringRecord{
		PrimaryNodeID:     primaryID,
		StandbyNodeID:     standbyID,
		MonitorTime:       time.Now(),
		LastApplyTime:     info.LastReplayTimestamp,
		StandbyReceiveLSN: info.ReceiveLSN,
	}

	if primaryLSNRaw, err := queryPrimaryWALLSN(ctx, upstreamConn); err != nil {
		logger := log.WithComponent("monitor")
		logger.Warn().Err(err).Msg("failed to read primary WAL position for monitoring record")
	} else {
		rec.PrimaryWALLSN = primaryLSNRaw
		primaryLSN, perr := localfile.ParseLSN(primaryLSNRaw)
		receiveLSN, rerr := localfile.ParseLSN(info.ReceiveLSN)
		if perr == nil && rerr == nil {
			rec.ReplicationLagBytes = int64(primaryLSN) - int64(receiveLSN)
			metrics.ReplicationLagBytes.Set(float64(rec.ReplicationLagBytes))
		}
		if replayLSN, err := localfile.ParseLSN(info.ReplayLSN); perr == nil && err == nil {
			rec.ApplyLagBytes = int64(primaryLSN) - int64(replayLSN)
		}
	}

	if err := catalog.New(upstreamConn).RecordMonitoring(ctx, rec); err != nil {
		logger := log.WithComponent("monitor")
		logger.Warn().Err(err).Msg("failed to write monitoring record")
	}
}
