package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/cuemby/repmgrd/pkg/events"
	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// Catalog is the access layer over the cluster's catalog tables and the
// shared voting/pause state exposed through the engine's stable
// procedure names.
type Catalog interface {
	GetNodeRecord(ctx context.Context, id int32) (*Node, RecordStatus, error)
	GetAllNodeRecords(ctx context.Context) ([]*Node, error)
	GetDownstreamNodeRecords(ctx context.Context, upstreamID int32) ([]*Node, error)
	GetActiveSiblingNodeRecords(ctx context.Context, selfID, upstreamID int32) ([]*Node, error)
	CreateNodeRecord(ctx context.Context, n *Node) error
	UpdateNodeRecord(ctx context.Context, n *Node) error
	UpdateNodeRecordSetPrimary(ctx context.Context, id int32) error
	UnregisterNodeRecord(ctx context.Context, id int32) error
	WitnessCopyNodeRecords(ctx context.Context, from, to *pool.Conn) error

	RecordEvent(ctx context.Context, ev *Event) error
	GetEvents(ctx context.Context, nodeID int32, limit int) ([]*Event, error)

	RecordMonitoring(ctx context.Context, m *MonitoringRecord) error
	CleanupMonitoringHistory(ctx context.Context, keepDays int) (int64, error)

	GetCurrentTerm(ctx context.Context) (int64, error)
	InitializeVotingTerm(ctx context.Context) error
	IncrementCurrentTerm(ctx context.Context) (int64, error)
	AnnounceCandidature(ctx context.Context, target *pool.Conn, candidateID int32, term int64) error
	NotifyFollowPrimary(ctx context.Context, target *pool.Conn, newPrimaryID int32) error
	GetNewPrimary(ctx context.Context) (int32, bool, error)
	ResetVotingStatus(ctx context.Context) error

	SetLocalNodeID(ctx context.Context, id int32) error
	GetLocalNodeID(ctx context.Context) (int32, bool, error)
	SetRepmgrdPID(ctx context.Context, pid int, pidFile string) error
	GetRepmgrdPID(ctx context.Context) (int, bool, error)
	RepmgrdIsRunning(ctx context.Context) (bool, error)
	RepmgrdPause(ctx context.Context, paused bool) error
	RepmgrdIsPaused(ctx context.Context) (bool, error)
	SetUpstreamLastSeen(ctx context.Context, id int32) error
	GetUpstreamLastSeen(ctx context.Context, id int32) (int64, error)

	GetSlotRecord(ctx context.Context, name string) (*Slot, ReplSlotStatus, error)
	CreateSlotSQL(ctx context.Context, name string) error
	CreateSlotReplicationProtocol(ctx context.Context, repl *pool.Conn, name string) error
	GetNodeAttached(ctx context.Context, nodeName string) (NodeAttachStatus, error)
}

// PGCatalog is the pgx-backed implementation of Catalog. It runs every
// query against the conn it was built with; callers that need to act
// against a different node's connection pass that Conn explicitly into
// the handful of methods that take one.
type PGCatalog struct {
	conn   *pool.Conn
	broker *events.Broker
}

// New returns a Catalog backed by conn.
func New(conn *pool.Conn) *PGCatalog {
	return &PGCatalog{conn: conn}
}

// SetBroker attaches an in-process event broker. Once set, every
// RecordEvent call also publishes the event to broker's subscribers in
// addition to writing the durable events row.
func (c *PGCatalog) SetBroker(broker *events.Broker) {
	c.broker = broker
}

func (c *PGCatalog) pg() *pgx.Conn { return c.conn.PG() }

func scanNode(row pgx.Row) (*Node, error) {
	n := &Node{}
	if err := row.Scan(
		&n.ID, &n.Type, &n.UpstreamNodeID, &n.Name, &n.Conninfo, &n.ReplUser,
		&n.SlotName, &n.Location, &n.Priority, &n.Active, &n.ConfigFile,
		&n.VirtualIP, &n.NetworkCard,
	); err != nil {
		return nil, err
	}
	return n, nil
}

const nodeColumns = `node_id, type, upstream_node_id, node_name, conninfo, repluser,
	slot_name, location, priority, active, config_file, virtual_ip, network_card`

func (c *PGCatalog) GetNodeRecord(ctx context.Context, id int32) (*Node, RecordStatus, error) {
	row := c.pg().QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE node_id = $1`, id)
	n, err := scanNode(row)
	if err == pgx.ErrNoRows {
		return nil, RecordNotFound, nil
	}
	if err != nil {
		return nil, RecordError, rerrors.New(rerrors.Catalog, "catalog.GetNodeRecord", err)
	}
	return n, RecordFound, nil
}

func (c *PGCatalog) queryNodes(ctx context.Context, query string, args ...any) ([]*Node, error) {
	rows, err := c.pg().Query(ctx, query, args...)
	if err != nil {
		return nil, rerrors.New(rerrors.Catalog, "catalog.queryNodes", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, rerrors.New(rerrors.Catalog, "catalog.queryNodes", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, rerrors.New(rerrors.Catalog, "catalog.queryNodes", err)
	}
	return nodes, nil
}

func (c *PGCatalog) GetAllNodeRecords(ctx context.Context) ([]*Node, error) {
	return c.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY node_id`)
}

func (c *PGCatalog) GetDownstreamNodeRecords(ctx context.Context, upstreamID int32) ([]*Node, error) {
	return c.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE upstream_node_id = $1 AND active ORDER BY node_id`, upstreamID)
}

func (c *PGCatalog) GetActiveSiblingNodeRecords(ctx context.Context, selfID, upstreamID int32) ([]*Node, error) {
	return c.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes
		WHERE upstream_node_id = $1 AND node_id != $2 AND active ORDER BY node_id`, upstreamID, selfID)
}

func (c *PGCatalog) CreateNodeRecord(ctx context.Context, n *Node) error {
	_, err := c.pg().Exec(ctx, `INSERT INTO nodes (`+nodeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		n.ID, n.Type, n.UpstreamNodeID, n.Name, n.Conninfo, n.ReplUser,
		n.SlotName, n.Location, n.Priority, n.Active, n.ConfigFile,
		n.VirtualIP, n.NetworkCard)
	if err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.CreateNodeRecord", err)
	}
	return nil
}

func (c *PGCatalog) UpdateNodeRecord(ctx context.Context, n *Node) error {
	_, err := c.pg().Exec(ctx, `UPDATE nodes SET
		type=$2, upstream_node_id=$3, node_name=$4, conninfo=$5, repluser=$6,
		slot_name=$7, location=$8, priority=$9, active=$10, config_file=$11,
		virtual_ip=$12, network_card=$13
		WHERE node_id = $1`,
		n.ID, n.Type, n.UpstreamNodeID, n.Name, n.Conninfo, n.ReplUser,
		n.SlotName, n.Location, n.Priority, n.Active, n.ConfigFile,
		n.VirtualIP, n.NetworkCard)
	if err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.UpdateNodeRecord", err)
	}
	return nil
}

// UpdateNodeRecordSetPrimary atomically deactivates any previous primary
// and marks id as the new one, inside a single transaction that rolls
// back on any statement failure — the invariant "at most one active
// primary at any commit boundary" is enforced here, not by the engine.
func (c *PGCatalog) UpdateNodeRecordSetPrimary(ctx context.Context, id int32) error {
	tx, err := c.pg().Begin(ctx)
	if err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.UpdateNodeRecordSetPrimary", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE nodes SET type = $1, upstream_node_id = NULL, active = TRUE
		WHERE node_id = $2`, NodeTypePrimary, id); err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.UpdateNodeRecordSetPrimary", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE nodes SET active = FALSE
		WHERE type = $1 AND node_id != $2`, NodeTypePrimary, id); err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.UpdateNodeRecordSetPrimary", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.UpdateNodeRecordSetPrimary", err)
	}
	return nil
}

func (c *PGCatalog) UnregisterNodeRecord(ctx context.Context, id int32) error {
	_, err := c.pg().Exec(ctx, `DELETE FROM nodes WHERE node_id = $1`, id)
	if err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.UnregisterNodeRecord", err)
	}
	return nil
}

// WitnessCopyNodeRecords truncates the witness's local copy of the nodes
// table and repopulates it from the primary, inside one transaction on
// the witness connection.
func (c *PGCatalog) WitnessCopyNodeRecords(ctx context.Context, from, to *pool.Conn) error {
	nodes, err := New(from).GetAllNodeRecords(ctx)
	if err != nil {
		return err
	}

	tx, err := to.PG().Begin(ctx)
	if err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.WitnessCopyNodeRecords", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE TABLE nodes`); err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.WitnessCopyNodeRecords", err)
	}
	for _, n := range nodes {
		if _, err := tx.Exec(ctx, `INSERT INTO nodes (`+nodeColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			n.ID, n.Type, n.UpstreamNodeID, n.Name, n.Conninfo, n.ReplUser,
			n.SlotName, n.Location, n.Priority, n.Active, n.ConfigFile,
			n.VirtualIP, n.NetworkCard); err != nil {
			return rerrors.New(rerrors.Catalog, "catalog.WitnessCopyNodeRecords", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.WitnessCopyNodeRecords", err)
	}
	return nil
}

// RecordEvent is best-effort: a failure to write the audit trail must
// never abort the action that produced it, so errors are logged and
// swallowed rather than returned.
func (c *PGCatalog) RecordEvent(ctx context.Context, ev *Event) error {
	_, err := c.pg().Exec(ctx, `INSERT INTO events (node_id, event_type, successful, event_timestamp, details)
		VALUES ($1,$2,$3,$4,$5)`, ev.NodeID, ev.EventType, ev.Successful, ev.Timestamp, ev.Details)
	if err != nil {
		logger := log.WithComponent("catalog")
		logger.Warn().Err(err).Str("event_type", ev.EventType).Msg("failed to record event")
	}

	if c.broker != nil {
		c.broker.Publish(&events.Event{
			NodeID:     ev.NodeID,
			Type:       events.EventType(ev.EventType),
			Timestamp:  ev.Timestamp,
			Successful: ev.Successful,
			Details:    ev.Details,
		})
	}

	return nil
}

func (c *PGCatalog) GetEvents(ctx context.Context, nodeID int32, limit int) ([]*Event, error) {
	var rows pgx.Rows
	var err error
	if nodeID > 0 {
		rows, err = c.pg().Query(ctx, `SELECT node_id, event_type, successful, event_timestamp, details
			FROM events WHERE node_id = $1 ORDER BY event_timestamp DESC LIMIT $2`, nodeID, limit)
	} else {
		rows, err = c.pg().Query(ctx, `SELECT node_id, event_type, successful, event_timestamp, details
			FROM events ORDER BY event_timestamp DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, rerrors.New(rerrors.Catalog, "catalog.GetEvents", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(&ev.NodeID, &ev.EventType, &ev.Successful, &ev.Timestamp, &ev.Details); err != nil {
			return nil, rerrors.New(rerrors.Catalog, "catalog.GetEvents", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (c *PGCatalog) RecordMonitoring(ctx context.Context, m *MonitoringRecord) error {
	_, err := c.pg().Exec(ctx, `INSERT INTO monitoring_history
		(primary_node_id, standby_node_id, monitor_time, last_apply_time,
		 primary_wal_lsn, standby_receive_lsn, replication_lag_bytes, apply_lag_bytes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.PrimaryNodeID, m.StandbyNodeID, m.MonitorTime, m.LastApplyTime,
		m.PrimaryWALLSN, m.StandbyReceiveLSN, m.ReplicationLagBytes, m.ApplyLagBytes)
	if err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.RecordMonitoring", err)
	}
	return nil
}

func (c *PGCatalog) CleanupMonitoringHistory(ctx context.Context, keepDays int) (int64, error) {
	tag, err := c.pg().Exec(ctx, `DELETE FROM monitoring_history
		WHERE monitor_time < now() - ($1 || ' days')::interval`, keepDays)
	if err != nil {
		return 0, rerrors.New(rerrors.Catalog, "catalog.CleanupMonitoringHistory", err)
	}
	return tag.RowsAffected(), nil
}

func (c *PGCatalog) GetCurrentTerm(ctx context.Context) (int64, error) {
	var term int64
	err := c.pg().QueryRow(ctx, `SELECT current_term FROM voting_term LIMIT 1`).Scan(&term)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, rerrors.New(rerrors.Catalog, "catalog.GetCurrentTerm", err)
	}
	return term, nil
}

func (c *PGCatalog) InitializeVotingTerm(ctx context.Context) error {
	_, err := c.pg().Exec(ctx, `INSERT INTO voting_term (current_term) VALUES (0)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return rerrors.New(rerrors.Catalog, "catalog.InitializeVotingTerm", err)
	}
	return nil
}

func (c *PGCatalog) IncrementCurrentTerm(ctx context.Context) (int64, error) {
	var term int64
	err := c.pg().QueryRow(ctx, `UPDATE voting_term SET current_term = current_term + 1
		RETURNING current_term`).Scan(&term)
	if err != nil {
		return 0, rerrors.New(rerrors.Catalog, "catalog.IncrementCurrentTerm", err)
	}
	return term, nil
}

// AnnounceCandidature calls the shared-state procedure on target's
// connection, not on c's own connection — a candidate announces its
// candidature on every sibling's session, not just its own.
func (c *PGCatalog) AnnounceCandidature(ctx context.Context, target *pool.Conn, candidateID int32, term int64) error {
	_, err := target.PG().Exec(ctx, `SELECT repmgrd_announce_candidature($1, $2)`, candidateID, term)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.AnnounceCandidature", err)
	}
	return nil
}

func (c *PGCatalog) NotifyFollowPrimary(ctx context.Context, target *pool.Conn, newPrimaryID int32) error {
	_, err := target.PG().Exec(ctx, `SELECT notify_follow_primary($1)`, newPrimaryID)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.NotifyFollowPrimary", err)
	}
	return nil
}

func (c *PGCatalog) GetNewPrimary(ctx context.Context) (int32, bool, error) {
	var id int32
	err := c.pg().QueryRow(ctx, `SELECT get_new_primary()`).Scan(&id)
	if err != nil {
		return 0, false, rerrors.New(rerrors.ProtocolLocal, "catalog.GetNewPrimary", err)
	}
	if id <= 0 {
		return 0, false, nil
	}
	return id, true, nil
}

func (c *PGCatalog) ResetVotingStatus(ctx context.Context) error {
	_, err := c.pg().Exec(ctx, `SELECT reset_voting_status()`)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.ResetVotingStatus", err)
	}
	return nil
}

func (c *PGCatalog) SetLocalNodeID(ctx context.Context, id int32) error {
	_, err := c.pg().Exec(ctx, `SELECT set_local_node_id($1)`, id)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.SetLocalNodeID", err)
	}
	return nil
}

func (c *PGCatalog) GetLocalNodeID(ctx context.Context) (int32, bool, error) {
	var id int32
	err := c.pg().QueryRow(ctx, `SELECT get_local_node_id()`).Scan(&id)
	if err != nil {
		return 0, false, rerrors.New(rerrors.ProtocolLocal, "catalog.GetLocalNodeID", err)
	}
	if id <= 0 {
		return 0, false, nil
	}
	return id, true, nil
}

func (c *PGCatalog) SetRepmgrdPID(ctx context.Context, pid int, pidFile string) error {
	_, err := c.pg().Exec(ctx, `SELECT set_repmgrd_pid($1, $2)`, pid, pidFile)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.SetRepmgrdPID", err)
	}
	return nil
}

func (c *PGCatalog) GetRepmgrdPID(ctx context.Context) (int, bool, error) {
	var pid int
	err := c.pg().QueryRow(ctx, `SELECT get_repmgrd_pid()`).Scan(&pid)
	if err != nil {
		return 0, false, rerrors.New(rerrors.ProtocolLocal, "catalog.GetRepmgrdPID", err)
	}
	if pid <= 0 {
		return 0, false, nil
	}
	return pid, true, nil
}

func (c *PGCatalog) RepmgrdIsRunning(ctx context.Context) (bool, error) {
	var running bool
	err := c.pg().QueryRow(ctx, `SELECT repmgrd_is_running()`).Scan(&running)
	if err != nil {
		return false, rerrors.New(rerrors.ProtocolLocal, "catalog.RepmgrdIsRunning", err)
	}
	return running, nil
}

func (c *PGCatalog) RepmgrdPause(ctx context.Context, paused bool) error {
	_, err := c.pg().Exec(ctx, `SELECT repmgrd_pause($1)`, paused)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.RepmgrdPause", err)
	}
	return nil
}

func (c *PGCatalog) RepmgrdIsPaused(ctx context.Context) (bool, error) {
	var paused bool
	err := c.pg().QueryRow(ctx, `SELECT repmgrd_is_paused()`).Scan(&paused)
	if err != nil {
		return false, rerrors.New(rerrors.ProtocolLocal, "catalog.RepmgrdIsPaused", err)
	}
	return paused, nil
}

func (c *PGCatalog) SetUpstreamLastSeen(ctx context.Context, id int32) error {
	_, err := c.pg().Exec(ctx, `SELECT set_upstream_last_seen($1)`, id)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.SetUpstreamLastSeen", err)
	}
	return nil
}

// GetUpstreamLastSeen returns -1 if the shared-state entry has never
// been updated, per the shared-state "never surfaces errors, returns
// sentinels" propagation policy.
func (c *PGCatalog) GetUpstreamLastSeen(ctx context.Context, id int32) (int64, error) {
	var seen int64
	err := c.pg().QueryRow(ctx, `SELECT get_upstream_last_seen($1)`, id).Scan(&seen)
	if err != nil {
		return -1, rerrors.New(rerrors.ProtocolLocal, "catalog.GetUpstreamLastSeen", err)
	}
	return seen, nil
}

func (c *PGCatalog) GetSlotRecord(ctx context.Context, name string) (*Slot, ReplSlotStatus, error) {
	var s Slot
	var slotType string
	err := c.pg().QueryRow(ctx, `SELECT slot_name, active, slot_type
		FROM pg_replication_slots WHERE slot_name = $1`, name).Scan(&s.Name, &s.Active, &slotType)
	if err == pgx.ErrNoRows {
		return nil, SlotNotFound, nil
	}
	if err != nil {
		return nil, SlotNotFound, rerrors.New(rerrors.Catalog, "catalog.GetSlotRecord", err)
	}
	s.Type = slotType
	if slotType != "physical" {
		return &s, SlotNotPhysical, nil
	}
	if s.Active {
		return &s, SlotActive, nil
	}
	return &s, SlotInactive, nil
}

func (c *PGCatalog) CreateSlotSQL(ctx context.Context, name string) error {
	_, err := c.pg().Exec(ctx, `SELECT pg_create_physical_replication_slot($1)`, name)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.CreateSlotSQL", err)
	}
	return nil
}

// CreateSlotReplicationProtocol creates the slot over a replication-mode
// connection, the path taken when the caller doesn't have a normal SQL
// session open on the upstream (e.g. during standby clone).
func (c *PGCatalog) CreateSlotReplicationProtocol(ctx context.Context, repl *pool.Conn, name string) error {
	_, err := repl.PG().Exec(ctx, `CREATE_REPLICATION_SLOT `+name+` PHYSICAL`)
	if err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "catalog.CreateSlotReplicationProtocol", err)
	}
	return nil
}

// GetNodeAttached reports whether nodeName's application_name is
// currently visible in pg_stat_replication on the node this connection
// points at.
func (c *PGCatalog) GetNodeAttached(ctx context.Context, nodeName string) (NodeAttachStatus, error) {
	var state string
	err := c.pg().QueryRow(ctx, `SELECT state FROM pg_stat_replication WHERE application_name = $1`, nodeName).Scan(&state)
	if err == pgx.ErrNoRows {
		return NodeNotAttached, nil
	}
	if err != nil {
		return NodeAttachedUnknown, rerrors.New(rerrors.Catalog, "catalog.GetNodeAttached", err)
	}
	if state == "streaming" {
		return NodeAttached, nil
	}
	return NodeAttachedAttaching, nil
}
