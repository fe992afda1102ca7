package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/repmgrd/pkg/pool"
)

// ConnChecker probes an already-open pool.Conn using the strategy
// named by its Type. It is what the monitoring daemon builds from
// config.Config.ConnectionCheckType to poll an upstream or a sibling.
type ConnChecker struct {
	conn    *pool.Conn
	check   CheckType
	query   string
	timeout time.Duration
}

// NewConnChecker returns a Checker bound to conn. query is only used
// when check is CheckTypeQuery; pass "" to use the default "SELECT 1".
func NewConnChecker(conn *pool.Conn, check CheckType, query string, timeout time.Duration) *ConnChecker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &ConnChecker{conn: conn, check: check, query: query, timeout: timeout}
}

// Check runs the configured strategy against the bound connection.
func (c *ConnChecker) Check(ctx context.Context) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch c.check {
	case CheckTypeQuery:
		return c.checkQuery(ctx, start)
	case CheckTypeConnection:
		return c.checkConnection(start)
	default:
		return c.checkPing(ctx, start)
	}
}

// checkPing issues a protocol-level ping, the cheapest probe and the
// default strategy.
func (c *ConnChecker) checkPing(ctx context.Context, start time.Time) Result {
	status := c.conn.Ping(ctx)
	if status != pool.StatusOK {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("ping returned %s", status),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	return Result{
		Healthy:   true,
		Message:   "ping ok",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// checkQuery runs a SQL statement and treats any error as unhealthy.
// Heavier than a ping; exercises the planner/executor path too, not
// just the wire protocol.
func (c *ConnChecker) checkQuery(ctx context.Context, start time.Time) Result {
	query := c.query
	if query == "" {
		query = "SELECT 1"
	}
	_, err := c.conn.PG().Exec(ctx, query)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("query failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	return Result{
		Healthy:   true,
		Message:   "query ok",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// checkConnection only asks whether the underlying connection object
// still believes itself open, without a round trip. Cheapest and
// least reliable of the three strategies.
func (c *ConnChecker) checkConnection(start time.Time) Result {
	if c.conn.PG().IsClosed() {
		return Result{
			Healthy:   false,
			Message:   "connection is closed",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	return Result{
		Healthy:   true,
		Message:   "connection open",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the check strategy this Checker was built with.
func (c *ConnChecker) Type() CheckType {
	return c.check
}
