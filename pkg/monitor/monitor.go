package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/catalogcache"
	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/failover"
	"github.com/cuemby/repmgrd/pkg/health"
	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/metrics"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/remote"
	"github.com/cuemby/repmgrd/pkg/vip"
)

// Role is the local node's registered type, read once at the start of
// Run; Reload does not re-read it.
type Role string

const (
	RolePrimary Role = "primary"
	RoleStandby Role = "standby"
	RoleWitness Role = "witness"
)

// State is the daemon's own view of upstream reachability, independent
// of Role: a primary is always "normal", a standby or witness flips to
// "degraded" once its upstream/primary connection has failed enough
// consecutive checks.
type State string

const (
	StateNormal   State = "normal"
	StateDegraded State = "degraded"
)

// Daemon is the monitoring loop for one node. It holds exactly the
// connections its current role needs; runPrimary, runStandby and
// runWitness each build and tear down their own.
type Daemon struct {
	mu  sync.RWMutex
	cfg *config.Config

	cat   catalog.Catalog
	pl    *pool.Pool
	cache *catalogcache.Cache
	vip   *vip.Arbitrator

	state         State
	degradedSince time.Time

	reloading atomic.Bool
	stopping  atomic.Bool
}

// New builds a Daemon. cat must already be bound to the local node's
// catalog connection; pl is used to open upstream/primary/sibling
// connections as the role-specific loops need them.
func New(cfg *config.Config, cat catalog.Catalog, pl *pool.Pool) *Daemon {
	var cache *catalogcache.Cache
	if c, err := catalogcache.Open(cfg.DataDirectory); err == nil {
		cache = c
	} else {
		logger := log.WithComponent("monitor")
		logger.Warn().Err(err).Msg("could not open local catalog cache, continuing without it")
	}

	return &Daemon{
		cfg:   cfg,
		cat:   cat,
		pl:    pl,
		cache: cache,
		vip:   vip.New(cfg.ArpingCommand, false, ""),
		state: StateNormal,
	}
}

// Reload swaps the active config. Only the main goroutine calls this,
// in response to SIGHUP; the loop picks up the new values at the top
// of its next tick via Daemon.config().
func (d *Daemon) Reload(cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	logger := log.WithComponent("monitor")
	logger.Info().Msg("configuration reloaded")
}

func (d *Daemon) config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Run blocks until ctx is cancelled (SIGTERM) and dispatches to the
// role-specific loop matching the local node's registered type.
func (d *Daemon) Run(ctx context.Context) error {
	node, status, err := d.cat.GetNodeRecord(ctx, d.config().NodeID)
	if err != nil {
		return err
	}
	if status != catalog.RecordFound {
		logger := log.WithComponent("monitor")
		logger.Fatal().Int32("node_id", d.config().NodeID).Msg("local node is not registered in the catalog")
	}

	metrics.SetRole(string(node.Type), []string{"primary", "standby", "witness", "unknown"})

	defer func() {
		if d.cache != nil {
			d.cache.Close()
		}
	}()

	switch node.Type {
	case catalog.NodeTypePrimary:
		return d.runPrimary(ctx, node)
	case catalog.NodeTypeWitness:
		return d.runWitness(ctx, node)
	default:
		return d.runStandby(ctx, node)
	}
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	if s == StateDegraded && prev != StateDegraded {
		d.degradedSince = time.Now()
	}
	d.mu.Unlock()

	metrics.SetState(string(s), []string{"normal", "degraded"})
	if s != prev {
		logger := log.WithComponent("monitor")
		logger.Warn().Str("state", string(s)).Msg("monitoring state changed")
	}
}

func (d *Daemon) degradedFor() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state != StateDegraded {
		return 0
	}
	return time.Since(d.degradedSince)
}

// newChecker builds a health.Checker for conn using the configured
// connection_check_type, falling back to a plain ping when unset.
func newChecker(conn *pool.Conn, cfg *config.Config) health.Checker {
	check := health.CheckTypePing
	switch cfg.ConnectionCheckType {
	case config.CheckQuery:
		check = health.CheckTypeQuery
	case config.CheckConnection:
		check = health.CheckTypeConnection
	}
	return health.NewConnChecker(conn, check, "", cfg.AsyncQueryTimeout)
}

// failoverEngine builds the engine used once degraded monitoring
// crosses the configured threshold.
func (d *Daemon) failoverEngine() *failover.Engine {
	cfg := d.config()
	return failover.NewEngine(d.cat, d.pl, d.vip, remote.NewExecutor(cfg.EventNotificationCommand), failover.Options{
		PromoteCommand:       cfg.PromoteCommand,
		PromoteCheckTimeout:  cfg.PromoteCheckTimeout,
		PromoteCheckInterval: cfg.PromoteCheckInterval,
		VirtualIP:            cfg.VirtualIP,
		NetworkCard:          cfg.NetworkCard,
	})
}
