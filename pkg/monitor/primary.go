package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/health"
	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/metrics"
)

// runPrimary implements the primary-node loop from §4.5: self-ping,
// standby inventory with slot-anomaly detection, periodic monitoring
// history vacuum, and virtual-IP bind.
func (d *Daemon) runPrimary(ctx context.Context, self *catalog.Node) error {
	logger := log.WithComponent("monitor").With().Str("role", "primary").Logger()

	selfConn, err := d.pl.Open(ctx, d.config().Conninfo)
	if err != nil {
		return err
	}
	defer selfConn.Close()

	checker := newChecker(selfConn, d.config())
	status := health.NewStatus()

	knownSlots := map[string]bool{}
	ticker := time.NewTicker(d.config().MonitorInterval)
	defer ticker.Stop()

	lastVacuum := time.Now()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("primary loop stopping")
			return nil
		case <-ticker.C:
			timer := metrics.NewTimer()
			if d.stopping.Load() {
				return nil
			}

			result := checker.Check(ctx)
			status.Update(result, health.Config{Retries: d.config().ReconnectAttempts})
			if !status.Healthy {
				logger.Warn().Msg("local self-check failing")
			}

			d.checkStandbyInventory(ctx, self, knownSlots, logger)

			if d.config().VirtualIP != "" {
				if err := d.vip.Bind(ctx, d.config().VirtualIP, d.config().NetworkCard); err != nil {
					logger.Warn().Err(err).Msg("failed to bind virtual IP")
				}
			}

			if time.Since(lastVacuum) > 24*time.Hour {
				if _, err := d.cat.CleanupMonitoringHistory(ctx, 7); err != nil {
					logger.Warn().Err(err).Msg("monitoring history cleanup failed")
				}
				lastVacuum = time.Now()
			}

			timer.ObserveDurationVec(metrics.TickDuration, "primary")
		}
	}
}

// checkStandbyInventory compares the registered downstream nodes
// against their physical replication slots, emitting an event the
// first time a slot for an active downstream goes missing or
// inactive, and another when it recovers.
func (d *Daemon) checkStandbyInventory(ctx context.Context, self *catalog.Node, slotWasOK map[string]bool, logger zerolog.Logger) {
	downstream, err := d.cat.GetDownstreamNodeRecords(ctx, self.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list downstream nodes")
		return
	}

	seen := map[string]bool{}
	for _, n := range downstream {
		if n.SlotName == "" {
			continue
		}
		seen[n.SlotName] = true

		_, slotStatus, err := d.cat.GetSlotRecord(ctx, n.SlotName)
		if err != nil {
			logger.Warn().Err(err).Str("slot", n.SlotName).Msg("failed to check replication slot")
			continue
		}

		ok := slotStatus == catalog.SlotActive
		was, known := slotWasOK[n.SlotName]

		if !ok && (!known || was) {
			d.recordEvent(ctx, n.ID, "child_node_disconnect", false,
				"replication slot "+n.SlotName+" is "+slotStatusName(slotStatus))
		} else if ok && known && !was {
			d.recordEvent(ctx, n.ID, "child_node_reconnect", true, "replication slot "+n.SlotName+" is active again")
		}
		slotWasOK[n.SlotName] = ok
	}

	for slot := range slotWasOK {
		if !seen[slot] {
			delete(slotWasOK, slot)
		}
	}
}

func slotStatusName(s catalog.ReplSlotStatus) string {
	switch s {
	case catalog.SlotNotFound:
		return "missing"
	case catalog.SlotNotPhysical:
		return "not physical"
	case catalog.SlotInactive:
		return "inactive"
	default:
		return "active"
	}
}

func (d *Daemon) recordEvent(ctx context.Context, nodeID int32, eventType string, successful bool, details string) {
	_ = d.cat.RecordEvent(ctx, &catalog.Event{
		NodeID:     nodeID,
		EventType:  eventType,
		Successful: successful,
		Timestamp:  time.Now(),
		Details:    details,
	})
}
