package nodeaction

import (
	"context"
	"fmt"

	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/remote"
	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// Service translates action into its configured shell command and runs
// it. When checkpoint is set for stop or restart, it issues a
// superuser-session CHECKPOINT first to shorten the subsequent start's
// recovery time.
func Service(ctx context.Context, cfg *config.Config, pl *pool.Pool, action ServiceAction, checkpoint bool) error {
	cmd, err := serviceCommand(cfg, action)
	if err != nil {
		return err
	}

	if checkpoint && (action == ServiceStop || action == ServiceRestart) {
		if conn, connErr := pl.Open(ctx, cfg.Conninfo); connErr == nil {
			_, _ = conn.PG().Exec(ctx, "CHECKPOINT")
			conn.Close()
		}
	}

	_, stderr, ok, err := remote.LocalCommand(ctx, cmd)
	if err != nil {
		return err
	}
	if !ok {
		return rerrors.New(rerrors.ProtocolLocal, "nodeaction.Service", fmt.Errorf("%s command exited non-zero: %s", action, stderr))
	}
	return nil
}

func serviceCommand(cfg *config.Config, action ServiceAction) (string, error) {
	switch action {
	case ServiceStart:
		return cfg.ServiceStartCommand, nil
	case ServiceStop:
		return cfg.ServiceStopCommand, nil
	case ServiceRestart:
		return cfg.ServiceRestartCommand, nil
	case ServiceReload:
		return cfg.ServiceReloadCommand, nil
	case ServicePromote:
		return cfg.ServicePromoteCommand, nil
	default:
		return "", rerrors.New(rerrors.Configuration, "nodeaction.Service", fmt.Errorf("unknown service action %q", action))
	}
}
