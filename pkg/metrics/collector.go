package metrics

import (
	"context"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/log"
)

var knownRoles = []string{"primary", "standby", "witness", "unknown"}
var knownStates = []string{"normal", "degraded"}

// Collector periodically refreshes the gauges that describe cluster
// shape rather than a single tick's event (role, voting term), while
// the per-tick gauges (replication lag) are set directly by pkg/monitor
// as it computes them.
type Collector struct {
	cat    catalog.Catalog
	selfID int32
	stopCh chan struct{}
}

// NewCollector creates a collector scoped to the local node's catalog view.
func NewCollector(cat catalog.Catalog, selfID int32) *Collector {
	return &Collector{
		cat:    cat,
		selfID: selfID,
		stopCh: make(chan struct{}),
	}
}

// Start begins the collection loop on a 15 second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectRole(ctx)
	c.collectVotingTerm(ctx)
}

func (c *Collector) collectRole(ctx context.Context) {
	node, status, err := c.cat.GetNodeRecord(ctx, c.selfID)
	if err != nil || status != catalog.RecordFound {
		logger := log.WithComponent("metrics")
		logger.Warn().Err(err).Msg("failed to refresh node role metric")
		return
	}
	SetRole(string(node.Type), knownRoles)
}

func (c *Collector) collectVotingTerm(ctx context.Context) {
	term, err := c.cat.GetCurrentTerm(ctx)
	if err != nil {
		logger := log.WithComponent("metrics")
		logger.Warn().Err(err).Msg("failed to refresh voting term metric")
		return
	}
	VotingTerm.Set(float64(term))
}
