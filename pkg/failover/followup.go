package failover

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/remote"
)

var errPromoteTimedOut = errors.New("promotion did not complete within the configured check timeout")

func runPromoteCommand(ctx context.Context, cmdString string) (stdout, stderr string, ok bool, err error) {
	return remote.LocalCommand(ctx, cmdString)
}

func (e *Engine) selfInRecovery(ctx context.Context) (bool, error) {
	if e.selfConn == nil {
		return false, nil
	}
	var inRecovery bool
	err := e.selfConn.PG().QueryRow(ctx, `SELECT pg_is_in_recovery()`).Scan(&inRecovery)
	return inRecovery, err
}

// recordFollowPending implements the Open Question resolution for a
// sibling whose re-point outcome isn't known yet at the time the
// election finishes: rather than guess success or failure, the event
// is recorded as pending and left for the next tick to upgrade.
//
// notifySucceeded only reflects whether the RPC itself was accepted;
// the sibling may still take a while to actually re-point and start
// streaming from the new primary, which is exactly the case
// UpgradePendingFollow resolves later.
func recordFollowPending(ctx context.Context, cat catalog.Catalog, nodeID int32, notifySucceeded bool) {
	details := "follow notification delivered, awaiting reconnect"
	if !notifySucceeded {
		details = "follow notification could not be delivered, awaiting sibling's own retry"
	}
	_ = cat.RecordEvent(ctx, &catalog.Event{
		NodeID: nodeID, EventType: "repmgrd_follow_pending",
		Successful: notifySucceeded, Timestamp: time.Now(), Details: details,
	})
}

// UpgradePendingFollow is called from the standby loop's next
// reconnect tick against a node that previously got a
// repmgrd_follow_pending event: if it is now attached to the expected
// new primary, the pending event is upgraded to standby_follow
// (success); if it has been unreachable or misattached past
// staleAfter since the pending event, it is upgraded to a failed
// standby_follow instead. Neither upgrade happens — the event stays
// pending — while staleAfter hasn't elapsed and the node's attachment
// is still unknown.
func UpgradePendingFollow(ctx context.Context, cat catalog.Catalog, nodeID int32, nodeName string, expectedPrimaryID int32, pendingSince time.Time, staleAfter time.Duration) {
	attached, err := cat.GetNodeAttached(ctx, nodeName)
	if err != nil {
		return
	}

	switch attached {
	case catalog.NodeAttached:
		_ = cat.RecordEvent(ctx, &catalog.Event{
			NodeID: nodeID, EventType: "standby_follow", Successful: true,
			Timestamp: time.Now(), Details: "attached to promoted primary",
		})
	case catalog.NodeNotAttached, catalog.NodeDetached:
		if time.Since(pendingSince) > staleAfter {
			_ = cat.RecordEvent(ctx, &catalog.Event{
				NodeID: nodeID, EventType: "standby_follow", Successful: false,
				Timestamp: time.Now(), Details: "did not attach to promoted primary within the follow window",
			})
		}
	}
}
