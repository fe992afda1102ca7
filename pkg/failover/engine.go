// Package failover implements the eight-step last-writer-wins election
// a standby runs once its upstream has been unreachable past the
// configured degraded-monitoring timeout.
package failover

import (
	"context"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/metrics"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/remote"
	"github.com/cuemby/repmgrd/pkg/rerrors"
	"github.com/cuemby/repmgrd/pkg/vip"
)

// Result reports what a RunElection call actually did.
type Result struct {
	Promoted     bool
	NewPrimaryID int32
	Term         int64
}

// Engine runs elections against the cluster's shared catalog state. It
// holds no per-election state between calls; every RunElection opens
// and closes its own sibling connections.
type Engine struct {
	cat    catalog.Catalog
	pl     *pool.Pool
	vip    *vip.Arbitrator
	remote *remote.Executor

	virtualIP   string
	networkCard string

	promoteCommand       string
	promoteCheckTimeout  time.Duration
	promoteCheckInterval time.Duration

	selfConn *pool.Conn
}

// BindSelf attaches the local node's own catalog connection, used only
// to poll pg_is_in_recovery() while waiting for a promote command to
// take effect. The standby loop opens a fresh local connection for this
// before RunElection and closes it once the election returns.
func (e *Engine) BindSelf(conn *pool.Conn) {
	e.selfConn = conn
}

// Options carries the handful of config values RunElection needs beyond
// its collaborators: the promotion command and how long/how often to
// poll for it taking effect, and the virtual address to bind afterward.
type Options struct {
	PromoteCommand       string
	PromoteCheckTimeout  time.Duration
	PromoteCheckInterval time.Duration
	VirtualIP            string
	NetworkCard          string
}

// NewEngine builds an Engine. cat must already be bound to the local
// node's own catalog connection — every catalog call RunElection makes
// against "self" goes through it; calls against siblings take an
// explicit *pool.Conn opened during the election.
func NewEngine(cat catalog.Catalog, pl *pool.Pool, vipArbitrator *vip.Arbitrator, remoteExec *remote.Executor, opts Options) *Engine {
	return &Engine{
		cat: cat, pl: pl, vip: vipArbitrator, remote: remoteExec,
		virtualIP: opts.VirtualIP, networkCard: opts.NetworkCard,
		promoteCommand:       opts.PromoteCommand,
		promoteCheckTimeout:  opts.PromoteCheckTimeout,
		promoteCheckInterval: opts.PromoteCheckInterval,
	}
}

// RunElection walks §4.6's eight numbered steps: collect, rank,
// increment term, announce, (implicitly) collect votes, promote,
// publish, re-point siblings, reset.
func (e *Engine) RunElection(ctx context.Context, self Candidate, siblings []*catalog.Node) (*Result, error) {
	logger := log.WithComponent("failover").With().Int32("self_id", self.NodeID).Logger()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ElectionDuration)
	metrics.FailoversTotal.Inc()

	// 1. Collect: reach every sibling, pull its receive LSN, keep the
	// connection open for the announce/vote/follow steps below.
	reachable, conns := e.collect(ctx, siblings, logger)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	candidates := append([]Candidate{self}, reachable...)

	// 2. Rank.
	ranked := Rank(candidates, self.Location)
	if len(ranked) == 0 || ranked[0].NodeID != self.NodeID {
		logger.Info().Msg("not top-ranked candidate, yielding this round")
		return &Result{}, nil
	}

	// 3. Increment term and announce candidature to every reachable sibling.
	term, err := e.cat.IncrementCurrentTerm(ctx)
	if err != nil {
		return nil, err
	}
	metrics.VotingTerm.Set(float64(term))

	weights := make(map[int32]float64, len(reachable))
	for _, c := range reachable {
		weights[c.NodeID] = c.Weight
	}

	var totalWeight, endorsedWeight float64
	for nodeID, conn := range conns {
		totalWeight += weights[nodeID]
		if err := e.cat.AnnounceCandidature(ctx, conn, self.NodeID, term); err != nil {
			logger.Warn().Err(err).Int32("sibling_id", nodeID).Msg("candidature announce failed")
			continue
		}
		endorsedWeight += weights[nodeID]
	}

	// 4. Collect votes: in this last-writer-wins protocol a successful
	// announce call is the sibling's endorsement — there is no separate
	// ballot to read back. Require every reachable sibling to have
	// endorsed, weighted by Candidate.Weight so a witness's vote counts
	// for less than a standby's; a node that couldn't be reached at all
	// doesn't block promotion, it simply isn't a voter this round.
	if endorsedWeight < totalWeight {
		logger.Warn().Float64("endorsed_weight", endorsedWeight).Float64("total_weight", totalWeight).Msg("not every reachable sibling endorsed, aborting election")
		_ = e.cat.ResetVotingStatus(ctx)
		return &Result{Term: term}, nil
	}

	// 5. Promote.
	if err := e.promote(ctx, logger); err != nil {
		_ = e.cat.ResetVotingStatus(ctx)
		return nil, rerrors.New(rerrors.ProtocolLocal, "failover.RunElection", err)
	}

	// 6. Publish.
	if err := e.cat.UpdateNodeRecordSetPrimary(ctx, self.NodeID); err != nil {
		return nil, err
	}
	_ = e.cat.RecordEvent(ctx, &catalog.Event{
		NodeID: self.NodeID, EventType: "repmgrd_failover_promote",
		Successful: true, Timestamp: time.Now(),
		Details: "promoted after election",
	})
	metrics.PromotionsTotal.Inc()

	if e.virtualIP != "" {
		if err := e.vip.Bind(ctx, e.virtualIP, e.networkCard); err != nil {
			logger.Warn().Err(err).Msg("promoted but failed to bind virtual IP")
		}
	}
	if e.remote != nil {
		e.remote.Notify(ctx, remote.TemplateVars{
			NodeID: self.NodeID, EventType: "repmgrd_failover_promote",
			Successful: true, Timestamp: time.Now().Format(time.RFC3339),
			Conninfo: self.Conninfo,
		})
	}

	// 7. Re-point siblings.
	e.repoint(ctx, self.NodeID, conns, logger)

	// 8. Reset.
	if err := e.cat.ResetVotingStatus(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to reset voting status after promotion")
	}

	return &Result{Promoted: true, NewPrimaryID: self.NodeID, Term: term}, nil
}
