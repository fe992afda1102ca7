package catalog

import "time"

// NodeType classifies a node's role in the cluster.
type NodeType string

const (
	NodeTypePrimary NodeType = "primary"
	NodeTypeStandby NodeType = "standby"
	NodeTypeWitness NodeType = "witness"
	NodeTypeUnknown NodeType = "unknown"
)

// Node is the authoritative row in the nodes catalog table.
type Node struct {
	ID             int32
	Type           NodeType
	UpstreamNodeID *int32
	Name           string
	Conninfo       string
	ReplUser       string
	SlotName       string
	Location       string
	Priority       int32
	Active         bool
	ConfigFile     string
	VirtualIP      string
	NetworkCard    string
}

// RecordStatus distinguishes "not found" from "query failed", grounded
// directly on RECORD_FOUND / RECORD_NOT_FOUND / RECORD_ERROR.
type RecordStatus int

const (
	RecordError RecordStatus = iota - 1
	RecordFound
	RecordNotFound
)

// NodeAttachStatus reports whether a standby is currently visible to its
// upstream via streaming replication, grounded on NODE_ATTACHED /
// NODE_NOT_ATTACHED / NODE_DETACHED.
type NodeAttachStatus int

const (
	NodeAttachedUnknown NodeAttachStatus = iota - 1
	NodeAttached
	NodeAttachedAttaching
	NodeNotAttached
	NodeDetached
)

// ReplSlotStatus reports the state of a physical replication slot,
// grounded on SLOT_NOT_FOUND / SLOT_NOT_PHYSICAL / SLOT_INACTIVE /
// SLOT_ACTIVE.
type ReplSlotStatus int

const (
	SlotNotFound ReplSlotStatus = iota
	SlotNotPhysical
	SlotInactive
	SlotActive
)

// Slot is a physical replication slot row as reported by the engine's
// pg_replication_slots view.
type Slot struct {
	Name   string
	Active bool
	Type   string
}

// Event is an append-only audit row. Never updated after insertion.
type Event struct {
	NodeID     int32
	EventType  string
	Successful bool
	Timestamp  time.Time
	Details    string
}

// MonitoringRecord is a single standby heartbeat row written into
// monitoring_history.
type MonitoringRecord struct {
	PrimaryNodeID       int32
	StandbyNodeID       int32
	MonitorTime         time.Time
	LastApplyTime       time.Time
	PrimaryWALLSN       string
	StandbyReceiveLSN   string
	ReplicationLagBytes int64
	ApplyLagBytes       int64
}

// ReplicationInfo is in-memory-only per-node replication state, refreshed
// every monitor tick. It is never persisted — pkg/catalogcache keeps the
// most recent snapshot for a one-shot command that runs between ticks.
type ReplicationInfo struct {
	CapturedAt               time.Time
	InRecovery               bool
	Timeline                 uint32
	ReceiveLSN               string
	ReplayLSN                string
	LastReplayTimestamp      time.Time
	LagSeconds               float64
	ReceivingStreamedWAL     bool
	ReplayPaused             bool
	SecondsSinceUpstreamSeen int64
	UpstreamNodeID           int32
}
