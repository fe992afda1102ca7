package failover

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/localfile"
	"github.com/cuemby/repmgrd/pkg/pool"
)

// collect dials every sibling with a nonzero priority, plus every
// witness regardless of priority, reads its current receive LSN, and
// returns both the resulting Candidates and the open connections
// (indexed by node id) so later steps can announce, promote-notify and
// follow over the same sessions. A witness is never top-ranked — Rank
// drops priority-0 candidates — but it is still announced to and its
// endorsement still counts, at WitnessVoteWeight rather than full
// weight, toward the quorum check in RunElection's step 4.
func (e *Engine) collect(ctx context.Context, siblings []*catalog.Node, logger zerolog.Logger) ([]Candidate, map[int32]*pool.Conn) {
	candidates := make([]Candidate, 0, len(siblings))
	conns := make(map[int32]*pool.Conn, len(siblings))

	for _, n := range siblings {
		isWitness := n.Type == catalog.NodeTypeWitness
		if !isWitness && n.Priority <= 0 {
			continue
		}

		conn, err := e.pl.Open(ctx, n.Conninfo)
		if err != nil {
			logger.Warn().Err(err).Int32("sibling_id", n.ID).Msg("sibling unreachable, excluding from election")
			continue
		}

		weight := 1.0
		if isWitness {
			weight = WitnessVoteWeight
		}

		var lsn localfile.LSN
		if !isWitness {
			lsn, err = queryReceiveLSN(ctx, conn)
			if err != nil {
				logger.Warn().Err(err).Int32("sibling_id", n.ID).Msg("failed to read sibling's receive LSN")
				conn.Close()
				continue
			}
		}

		candidates = append(candidates, Candidate{
			NodeID: n.ID, ReceiveLSN: lsn, Priority: n.Priority, Location: n.Location, Weight: weight,
		})
		conns[n.ID] = conn
	}

	return candidates, conns
}

func queryReceiveLSN(ctx context.Context, conn *pool.Conn) (localfile.LSN, error) {
	var raw string
	err := conn.PG().QueryRow(ctx, `SELECT coalesce(pg_last_wal_receive_lsn()::text, pg_current_wal_lsn()::text)`).Scan(&raw)
	if err != nil && err != pgx.ErrNoRows {
		return 0, err
	}
	return localfile.ParseLSN(raw)
}

// promote runs the configured promote command and polls the local
// engine until pg_is_in_recovery() flips false or the check timeout
// elapses.
func (e *Engine) promote(ctx context.Context, logger zerolog.Logger) error {
	if e.promoteCommand != "" {
		if _, stderr, ok, err := runPromoteCommand(ctx, e.promoteCommand); err != nil {
			return err
		} else if !ok {
			logger.Error().Str("stderr", stderr).Msg("promote command exited non-zero")
		}
	}

	timeout := e.promoteCheckTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	interval := e.promoteCheckInterval
	if interval == 0 {
		interval = 2 * time.Second
	}

	deadline := time.Now().Add(timeout)
	for {
		inRecovery, err := e.selfInRecovery(ctx)
		if err == nil && !inRecovery {
			return nil
		}
		if time.Now().After(deadline) {
			return errPromoteTimedOut
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// repoint calls notify_follow_primary on every sibling the election
// reached. A failure here is never fatal to the election — the new
// primary has already published; the affected sibling catches up on
// its own next reconnect tick.
func (e *Engine) repoint(ctx context.Context, newPrimaryID int32, conns map[int32]*pool.Conn, logger zerolog.Logger) {
	for nodeID, conn := range conns {
		if err := e.cat.NotifyFollowPrimary(ctx, conn, newPrimaryID); err != nil {
			logger.Warn().Err(err).Int32("sibling_id", nodeID).Msg("notify_follow_primary failed, sibling will catch up later")
			recordFollowPending(ctx, e.cat, nodeID, false)
			continue
		}
		recordFollowPending(ctx, e.cat, nodeID, true)
	}
}
