package nodeaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/localfile"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/remote"
	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// archivedConfigSuffix marks the files Rejoin moves aside before a
// block-level resync and restores afterward.
const archivedConfigSuffix = ".repmgrd-rejoin"

var rejoinConfigFiles = []string{"postgresql.conf", "pg_hba.conf", "pg_ident.conf"}

// Rejoin implements §4.7 `node rejoin`: verify the local engine is
// cleanly shut down (or block-level resync was explicitly requested),
// check that the local minimum-recovery timeline is not ahead of the
// target upstream's, optionally run the configured resync tool, then
// start the local engine and, when opts.Wait is set, wait for
// reattachment. It does not rewrite the node's upstream connection
// information: the engine starts with the replication settings its data
// directory already holds.
func Rejoin(ctx context.Context, cat catalog.Catalog, pl *pool.Pool, cfg *config.Config, opts RejoinOptions) error {
	shutdown, err := IsShutdownCleanly(cfg.DataDirectory)
	if err != nil && !opts.AllowBlockResync {
		return err
	}
	if shutdown.State != StateShutdown && !opts.AllowBlockResync {
		return rerrors.New(rerrors.ProtocolLocal, "nodeaction.Rejoin",
			fmt.Errorf("data directory is not cleanly shut down (state %s); pass AllowBlockResync to resync instead", shutdown.State))
	}

	upstreamConn, err := pl.Open(ctx, opts.UpstreamConninfo)
	if err != nil {
		return err
	}
	defer upstreamConn.Close()

	if err := sanityCheckAgainstUpstream(ctx, cfg.DataDirectory, upstreamConn); err != nil {
		return err
	}

	if opts.ResyncCommand != "" {
		if err := runBlockResync(ctx, cfg.DataDirectory, opts.ResyncCommand); err != nil {
			return err
		}
	}

	if err := Service(ctx, cfg, pl, ServiceStart, false); err != nil {
		return err
	}

	if !opts.Wait {
		return nil
	}
	return waitForAttachment(ctx, cat, cfg.NodeName, opts.WaitTimeout)
}

// sanityCheckAgainstUpstream compares the local control file's
// minimum-recovery timeline against the upstream's current checkpoint
// timeline, refusing a rejoin when the local timeline is ahead. The
// minimum-recovery LSN is not compared.
func sanityCheckAgainstUpstream(ctx context.Context, dataDir string, upstreamConn *pool.Conn) error {
	local, err := localfile.Inspect(dataDir)
	if err != nil {
		return err
	}

	var upstreamTimeline uint32
	if err := upstreamConn.PG().QueryRow(ctx, `SELECT timeline_id FROM pg_control_checkpoint()`).Scan(&upstreamTimeline); err != nil {
		return rerrors.New(rerrors.Connectivity, "nodeaction.Rejoin", err)
	}

	if local.MinRecoveryEndTimeline != 0 && local.MinRecoveryEndTimeline > upstreamTimeline {
		return rerrors.New(rerrors.Consistency, "nodeaction.Rejoin",
			fmt.Errorf("local minimum-recovery timeline %d is ahead of upstream timeline %d", local.MinRecoveryEndTimeline, upstreamTimeline))
	}
	return nil
}

func runBlockResync(ctx context.Context, dataDir, resyncCommand string) error {
	if err := archiveConfigFiles(dataDir); err != nil {
		return err
	}
	defer restoreConfigFiles(dataDir)

	signalPath := filepath.Join(dataDir, "standby.signal")
	removed := false
	if _, err := os.Stat(signalPath); err == nil {
		if err := os.Remove(signalPath); err != nil {
			return rerrors.New(rerrors.FileSystem, "nodeaction.Rejoin", err)
		}
		removed = true
	}

	_, stderr, ok, err := remote.LocalCommand(ctx, resyncCommand)
	if err != nil {
		return err
	}
	if !ok {
		return rerrors.New(rerrors.ProtocolLocal, "nodeaction.Rejoin", fmt.Errorf("resync tool exited non-zero: %s", stderr))
	}

	if removed {
		_ = os.WriteFile(signalPath, nil, 0o644)
	}
	return nil
}

func archiveConfigFiles(dataDir string) error {
	for _, name := range rejoinConfigFiles {
		src := filepath.Join(dataDir, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyFile(src, src+archivedConfigSuffix); err != nil {
			return rerrors.New(rerrors.FileSystem, "nodeaction.Rejoin", err)
		}
	}
	return nil
}

func restoreConfigFiles(dataDir string) {
	for _, name := range rejoinConfigFiles {
		archived := filepath.Join(dataDir, name) + archivedConfigSuffix
		if _, err := os.Stat(archived); err != nil {
			continue
		}
		_ = os.Rename(archived, filepath.Join(dataDir, name))
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func waitForAttachment(ctx context.Context, cat catalog.Catalog, nodeName string, timeout time.Duration) error {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		attached, err := cat.GetNodeAttached(ctx, nodeName)
		if err == nil && attached == catalog.NodeAttached {
			return nil
		}
		if time.Now().After(deadline) {
			return rerrors.New(rerrors.Connectivity, "nodeaction.Rejoin", fmt.Errorf("node did not reattach within %s", timeout))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
