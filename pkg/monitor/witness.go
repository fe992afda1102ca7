package monitor

import (
	"context"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/health"
	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/metrics"
)

// runWitness implements the witness-node loop from §4.5: a witness
// holds no replica of its own, periodically pulls a fresh copy of the
// nodes table from the primary, and otherwise only participates in
// elections when announced to — it is consulted and its endorsement
// counts toward quorum at a lower weight (pkg/failover.collect and
// RunElection), but it never ranks as a promotion candidate itself
// since Rank drops priority-0 nodes.
func (d *Daemon) runWitness(ctx context.Context, self *catalog.Node) error {
	logger := log.WithComponent("monitor").With().Str("role", "witness").Logger()

	if self.UpstreamNodeID == nil {
		logger.Error().Msg("witness has no registered primary, cannot monitor")
		return nil
	}
	primaryID := *self.UpstreamNodeID

	selfConn, err := d.pl.Open(ctx, d.config().Conninfo)
	if err != nil {
		return err
	}
	defer selfConn.Close()

	primaryConn := d.dialUpstream(ctx, primaryID, logger)
	defer func() {
		if primaryConn != nil {
			primaryConn.Close()
		}
	}()

	status := health.NewStatus()
	checkCfg := health.Config{Timeout: d.config().AsyncQueryTimeout, Retries: d.config().ReconnectAttempts}

	syncInterval := d.config().WitnessSyncInterval
	if syncInterval == 0 {
		syncInterval = d.config().MonitorInterval
	}
	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()

	checkTicker := time.NewTicker(d.config().MonitorInterval)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("witness loop stopping")
			return nil

		case <-checkTicker.C:
			timer := metrics.NewTimer()
			if d.stopping.Load() {
				return nil
			}
			if primaryConn == nil {
				primaryConn = d.dialUpstream(ctx, primaryID, logger)
			}
			var result health.Result
			if primaryConn != nil {
				result = newChecker(primaryConn, d.config()).Check(ctx)
			} else {
				result = health.Result{Healthy: false, CheckedAt: time.Now(), Message: "no primary connection"}
			}
			status.Update(result, checkCfg)
			if status.Healthy {
				d.setState(StateNormal)
				_ = d.cat.SetUpstreamLastSeen(ctx, primaryID)
			} else {
				d.setState(StateDegraded)
				if primaryConn != nil {
					primaryConn.Close()
					primaryConn = nil
				}
			}
			timer.ObserveDurationVec(metrics.TickDuration, "witness")

		case <-syncTicker.C:
			if primaryConn == nil {
				continue
			}
			if err := d.cat.WitnessCopyNodeRecords(ctx, primaryConn, selfConn); err != nil {
				logger.Warn().Err(err).Msg("witness node-table sync failed")
			}
		}
	}
}
