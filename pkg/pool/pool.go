package pool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// DefaultSearchPath is the schema every connection is pinned to unless the
// caller overrides it through Params. It matches the schema the catalog
// procedures are installed into.
const DefaultSearchPath = "repmgr, public"

// DefaultAppName is the application_name reported to the engine when a
// caller doesn't supply its own.
const DefaultAppName = "repmgrd"

// Status is the outcome of a Ping.
type Status int

const (
	StatusOK Status = iota
	StatusBad
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBad:
		return "bad"
	default:
		return "error"
	}
}

// AvailabilityResult is the outcome of WaitAvailable.
type AvailabilityResult int

const (
	AvailabilityReady AvailabilityResult = iota
	AvailabilityError
	AvailabilityTimeout
)

// Param is a single connection-parameter key/value pair.
type Param struct {
	Key   string
	Value string
}

// Params is an insertion-order-preserving connection parameter list, built
// from a node's conninfo or assembled field by field by a caller that
// needs to override one key (user, dbname, replication). A plain
// map[string]string would not do here: libpq reconstructs conninfo
// deterministically, and Params.String() must too.
type Params []Param

// Set appends key=value, preserving the order Set was called in. Callers
// that need to override an earlier key should build a fresh Params rather
// than rely on last-key-wins, since String() renders every pair.
func (p Params) Set(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Override replaces the value of an existing key in place, preserving its
// original position, or appends key=value if the key isn't present yet.
// Used when only one or two fields of an otherwise-complete parameter list
// need to change, so the rest keep their original order and values.
func (p Params) Override(key, value string) Params {
	for i := range p {
		if p[i].Key == key {
			out := make(Params, len(p))
			copy(out, p)
			out[i].Value = value
			return out
		}
	}
	return p.Set(key, value)
}

// ParseParams splits a libpq keyword/value conninfo string (the form
// "host=... port=... user=... password=... dbname=... sslmode=...") back
// into an ordered Params list, so a connection's full parameter set can be
// carried forward and selectively overridden rather than rebuilt from a
// handful of hand-picked fields.
func ParseParams(conninfo string) (Params, error) {
	var params Params
	s := conninfo
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			break
		}
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return nil, rerrors.New(rerrors.Configuration, "pool.ParseParams", fmt.Errorf("missing '=' in conninfo near %q", s))
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, "'") {
			var b strings.Builder
			i := 1
			closed := false
			for i < len(s) {
				switch s[i] {
				case '\\':
					if i+1 < len(s) {
						b.WriteByte(s[i+1])
						i += 2
						continue
					}
				case '\'':
					closed = true
					i++
				}
				if closed {
					break
				}
				b.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, rerrors.New(rerrors.Configuration, "pool.ParseParams", fmt.Errorf("unterminated quoted value for key %q", key))
			}
			value = b.String()
			s = s[i:]
		} else {
			end := strings.IndexAny(s, " \t\r\n")
			if end < 0 {
				end = len(s)
			}
			value = s[:end]
			s = s[end:]
		}
		params = append(params, Param{Key: key, Value: value})
	}
	return params, nil
}

// String renders Params as a libpq keyword/value connection string.
func (p Params) String() string {
	var b strings.Builder
	for _, kv := range p {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s='%s'", kv.Key, strings.ReplaceAll(kv.Value, "'", `\'`))
	}
	return b.String()
}

// Pool constructs Conns. It holds no connections itself; every Open* call
// returns a Conn the caller is responsible for closing.
type Pool struct {
	appName string
}

// New returns a Pool that stamps appName onto every connection it opens
// unless the caller's Params already set application_name.
func New(appName string) *Pool {
	if appName == "" {
		appName = DefaultAppName
	}
	return &Pool{appName: appName}
}

// Conn wraps a single pgx connection together with the conninfo it was
// opened from, so that PingWithReset and Duplicate can reconnect without
// the caller re-supplying connection details.
type Conn struct {
	pg       *pgx.Conn
	conninfo string
	pool     *Pool
	isRepl   bool
}

// Open parses conninfo and connects, applying the pool's ambient settings.
func (p *Pool) Open(ctx context.Context, conninfo string) (*Conn, error) {
	return p.open(ctx, conninfo, false)
}

// OpenFromParams assembles conninfo from params and connects.
func (p *Pool) OpenFromParams(ctx context.Context, params Params) (*Conn, error) {
	return p.Open(ctx, params.String())
}

// OpenFatal behaves like Open but logs and exits the process on failure,
// for use at daemon/CLI startup where there is nothing useful to do
// without a catalog connection.
func (p *Pool) OpenFatal(ctx context.Context, conninfo string) (*Conn, error) {
	c, err := p.Open(ctx, conninfo)
	if err != nil {
		logger := log.WithComponent("pool")
		logger.Fatal().Err(err).Msg("could not open catalog connection")
		return nil, err
	}
	return c, nil
}

func (p *Pool) open(ctx context.Context, conninfo string, replication bool) (*Conn, error) {
	cfg, err := pgx.ParseConfig(conninfo)
	if err != nil {
		return nil, rerrors.New(rerrors.Configuration, "pool.Open", err)
	}

	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	if _, ok := cfg.RuntimeParams["application_name"]; !ok {
		cfg.RuntimeParams["application_name"] = p.appName
	}
	if replication {
		cfg.RuntimeParams["replication"] = "1"
		if cfg.Database == "" {
			cfg.Database = "replication"
		}
	} else if _, ok := cfg.RuntimeParams["search_path"]; !ok {
		cfg.RuntimeParams["search_path"] = DefaultSearchPath
	}

	pg, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, rerrors.New(rerrors.Connectivity, "pool.Open", err)
	}

	if !replication {
		if _, err := pg.Exec(ctx, "SET synchronous_commit = local"); err != nil {
			pg.Close(ctx)
			return nil, rerrors.New(rerrors.Connectivity, "pool.Open", err)
		}
	}

	return &Conn{pg: pg, conninfo: conninfo, pool: p, isRepl: replication}, nil
}

// Duplicate opens a fresh connection to the same server, optionally
// connecting as a different user. It carries forward the full original
// parameter list — password, sslmode, and everything else — rather than
// hand-picking a handful of fields, the way duplicate_connection() builds
// off conn_to_param_list() and only overrides the keys it's asked to.
func (c *Conn) Duplicate(ctx context.Context, userOverride string) (*Conn, error) {
	params, err := ParseParams(c.conninfo)
	if err != nil {
		return nil, err
	}
	if userOverride != "" {
		params = params.Override("user", userOverride)
	}
	return c.pool.open(ctx, params.String(), c.isRepl)
}

// OpenReplication opens a second connection to the same server in
// replication mode, for inspecting the WAL receiver or walking the
// physical replication slot.
func (c *Conn) OpenReplication(ctx context.Context) (*Conn, error) {
	return c.pool.open(ctx, c.conninfo, true)
}

// PG exposes the underlying pgx connection for callers in pkg/catalog
// that need to run parameterized queries directly.
func (c *Conn) PG() *pgx.Conn {
	return c.pg
}

// Ping checks whether the connection is usable.
func (c *Conn) Ping(ctx context.Context) Status {
	if c.pg.IsClosed() {
		return StatusBad
	}
	if err := c.pg.Ping(ctx); err != nil {
		return StatusError
	}
	return StatusOK
}

// PingWithReset pings, and on a bad connection transparently reconnects
// using the stored conninfo before reporting the result.
func (c *Conn) PingWithReset(ctx context.Context) Status {
	status := c.Ping(ctx)
	if status != StatusBad {
		return status
	}

	fresh, err := c.pool.open(ctx, c.conninfo, c.isRepl)
	if err != nil {
		return StatusError
	}
	_ = c.pg.Close(ctx)
	c.pg = fresh.pg
	return c.Ping(ctx)
}

// CancelQuery sends a cancellation request for whatever statement is
// currently running on this connection.
func (c *Conn) CancelQuery(ctx context.Context) error {
	if err := c.pg.PgConn().CancelRequest(ctx); err != nil {
		return rerrors.New(rerrors.Connectivity, "pool.CancelQuery", err)
	}
	return nil
}

// WaitAvailable polls Ping until the connection becomes usable or timeout
// elapses, used while waiting for a promoted node to accept connections.
func (c *Conn) WaitAvailable(timeout time.Duration) AvailabilityResult {
	deadline := time.Now().Add(timeout)
	ctx := context.Background()
	for {
		switch c.Ping(ctx) {
		case StatusOK:
			return AvailabilityReady
		case StatusBad:
			return AvailabilityError
		}
		if time.Now().After(deadline) {
			return AvailabilityTimeout
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// Close releases the underlying connection.
func (c *Conn) Close() {
	_ = c.pg.Close(context.Background())
}
