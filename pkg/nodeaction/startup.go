package nodeaction

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/vip"
)

const startupConfigPollInterval = 500 * time.Millisecond

// mainConfigFile is the engine's own configuration file, distinct from
// repmgrd's — always at this fixed path under the data directory.
func mainConfigFile(dataDir string) string {
	return filepath.Join(dataDir, "postgresql.conf")
}

// Startup implements the §4.7 bring-up sequence: wait for the engine's
// main configuration file to exist, start the engine, and — only if
// this node is the cluster's registered primary — either bind the
// virtual address or, if another primary is already active, stop the
// engine back down so the daemon re-joins it on its next attempt.
func Startup(ctx context.Context, cat catalog.Catalog, pl *pool.Pool, cfg *config.Config) error {
	if err := waitForConfigFile(ctx, mainConfigFile(cfg.DataDirectory)); err != nil {
		return err
	}

	if err := Service(ctx, cfg, pl, ServiceStart, false); err != nil {
		return err
	}

	node, status, err := cat.GetNodeRecord(ctx, cfg.NodeID)
	if err != nil || status != catalog.RecordFound {
		return err
	}
	if node.Type != catalog.NodeTypePrimary {
		return nil
	}

	others, err := cat.GetAllNodeRecords(ctx)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID == node.ID {
			continue
		}
		if other.Type == catalog.NodeTypePrimary && other.Active {
			conn, err := pl.Open(ctx, other.Conninfo)
			if err == nil {
				ping := conn.Ping(ctx)
				conn.Close()
				if ping == pool.StatusOK {
					return Service(ctx, cfg, pl, ServiceStop, false)
				}
			}
		}
	}

	if cfg.VirtualIP == "" {
		return nil
	}
	arbitrator := vip.New(cfg.ArpingCommand, false, "")
	return arbitrator.Bind(ctx, cfg.VirtualIP, cfg.NetworkCard)
}

func waitForConfigFile(ctx context.Context, path string) error {
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startupConfigPollInterval):
		}
	}
}
