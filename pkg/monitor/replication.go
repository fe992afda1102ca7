package monitor

import (
	"context"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// queryReplicationInfo reads the local node's current recovery state
// directly off conn. It is the standby loop's per-tick refresh and the
// thing pkg/catalogcache.PutReplicationInfo persists for one-shot
// commands that run between ticks.
func queryReplicationInfo(ctx context.Context, conn *pool.Conn, upstreamID int32) (*catalog.ReplicationInfo, error) {
	info := &catalog.ReplicationInfo{CapturedAt: time.Now(), UpstreamNodeID: upstreamID}

	if err := conn.PG().QueryRow(ctx, `SELECT pg_is_in_recovery()`).Scan(&info.InRecovery); err != nil {
		return nil, rerrors.New(rerrors.Connectivity, "monitor.queryReplicationInfo", err)
	}

	if !info.InRecovery {
		return info, nil
	}

	row := conn.PG().QueryRow(ctx, `SELECT
			coalesce(pg_last_wal_receive_lsn()::text, ''),
			coalesce(pg_last_wal_replay_lsn()::text, ''),
			coalesce(pg_last_xact_replay_timestamp(), 'epoch'::timestamptz),
			coalesce(extract(epoch from (now() - pg_last_xact_replay_timestamp())), 0),
			coalesce((SELECT pg_is_wal_replay_paused()), false),
			(SELECT timeline_id FROM pg_control_checkpoint())`)
	var lastReplayTS time.Time
	if err := row.Scan(&info.ReceiveLSN, &info.ReplayLSN, &lastReplayTS, &info.LagSeconds, &info.ReplayPaused, &info.Timeline); err != nil {
		return nil, rerrors.New(rerrors.Connectivity, "monitor.queryReplicationInfo", err)
	}
	info.LastReplayTimestamp = lastReplayTS

	var receiverCount int
	if err := conn.PG().QueryRow(ctx, `SELECT count(*) FROM pg_stat_wal_receiver WHERE status = 'streaming'`).Scan(&receiverCount); err == nil {
		info.ReceivingStreamedWAL = receiverCount > 0
	}

	return info, nil
}

// queryPrimaryWALLSN reads the current WAL write position off conn,
// which must be a connection to the upstream/primary node rather than
// the standby calling it — it is the reference point the standby's own
// receive and replay LSNs are compared against to compute byte lag.
func queryPrimaryWALLSN(ctx context.Context, conn *pool.Conn) (string, error) {
	var raw string
	err := conn.PG().QueryRow(ctx, `SELECT pg_current_wal_lsn()::text`).Scan(&raw)
	if err != nil {
		return "", rerrors.New(rerrors.Connectivity, "monitor.queryPrimaryWALLSN", err)
	}
	return raw, nil
}
