package nodeaction

import (
	"context"
	"fmt"

	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// Control pauses or resumes WAL replay on a running standby
// (pg_wal_replay_pause / pg_wal_replay_resume), for reproducing a
// stalled-replay condition without restarting the whole engine. The WAL
// receiver process is not stopped or started: it keeps streaming while
// replay is paused.
func Control(ctx context.Context, cfg *config.Config, pl *pool.Pool, action ControlAction) error {
	conn, err := pl.Open(ctx, cfg.Conninfo)
	if err != nil {
		return err
	}
	defer conn.Close()

	var query string
	switch action {
	case ControlDisableWALReceiver:
		query = `SELECT pg_wal_replay_pause()`
	case ControlEnableWALReceiver:
		query = `SELECT pg_wal_replay_resume()`
	default:
		return rerrors.New(rerrors.Configuration, "nodeaction.Control", fmt.Errorf("unknown control action %q", action))
	}

	if _, err := conn.PG().Exec(ctx, query); err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "nodeaction.Control", err)
	}
	return nil
}
