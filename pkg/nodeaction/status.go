package nodeaction

import (
	"context"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/localfile"
	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// IsShutdownCleanly reads dataDir's control file and reports whether
// the engine shut down cleanly, the state a resync tool or rejoin needs
// before it can safely run. It never writes.
func IsShutdownCleanly(dataDir string) (*ShutdownReport, error) {
	info, err := localfile.Inspect(dataDir)
	if err != nil {
		return &ShutdownReport{State: StateUnknown}, err
	}

	switch info.State {
	case localfile.DBShutdowned, localfile.DBShutdownedInRecovery:
		return &ShutdownReport{State: StateShutdown, LastCheckpoint: info.CheckPoint.String()}, nil
	case localfile.DBShutdowning:
		return &ShutdownReport{State: StateShuttingDown}, nil
	case localfile.DBInProduction, localfile.DBInCrashRecovery, localfile.DBInArchiveRecovery:
		return &ShutdownReport{State: StateRunning}, nil
	case localfile.DBStartup:
		return &ShutdownReport{State: StateUncleanShutdown}, nil
	default:
		return &ShutdownReport{State: StateUnknown}, nil
	}
}

// Status reports node's registered record together with its live
// shutdown state, for `node status`.
func Status(ctx context.Context, cat catalog.Catalog, nodeID int32, dataDir string) (*StatusReport, error) {
	node, recordStatus, err := cat.GetNodeRecord(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if recordStatus != catalog.RecordFound {
		return nil, rerrors.New(rerrors.Catalog, "nodeaction.Status", errNodeNotRegistered(nodeID))
	}

	shutdown, err := IsShutdownCleanly(dataDir)
	if err != nil {
		shutdown = &ShutdownReport{State: StateUnknown}
	}

	upstream := int32(0)
	if node.UpstreamNodeID != nil {
		upstream = *node.UpstreamNodeID
	}

	return &StatusReport{
		NodeID: node.ID, NodeName: node.Name, Type: string(node.Type),
		Upstream: upstream, Shutdown: *shutdown, Timestamp: time.Now(),
	}, nil
}
