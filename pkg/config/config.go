package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magiconair/properties"

	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// FailoverMode selects whether the monitoring daemon is allowed to act on
// an election outcome or must only log and wait for an operator.
type FailoverMode string

const (
	FailoverManual    FailoverMode = "manual"
	FailoverAutomatic FailoverMode = "automatic"
)

// ConnectionCheckType selects how the monitoring loop probes the upstream
// node before deciding it has lost contact.
type ConnectionCheckType string

const (
	CheckPing       ConnectionCheckType = "ping"
	CheckQuery      ConnectionCheckType = "query"
	CheckConnection ConnectionCheckType = "connection"
)

// Config is the fully-parsed, validated content of a repmgr.conf file.
// It is immutable once returned from Load; a SIGHUP reload builds a new
// Config and atomically replaces the one the daemon holds.
type Config struct {
	NodeID              int32
	NodeName            string
	Conninfo            string
	DataDirectory       string
	Location            string
	Priority            int32
	ReplicationType     string
	UseReplicationSlots bool

	LogLevel        string
	LogFacility     string
	LogFile         string
	LogRotationSize time.Duration // interpreted as bytes, kept as Duration-typed int64 via Nanoseconds() == bytes
	LogRotationAge  time.Duration

	Failover       FailoverMode
	PromoteCommand string
	FollowCommand  string

	MonitorInterval            time.Duration
	ReconnectAttempts          int
	ReconnectInterval          time.Duration
	DegradedMonitoringTimeout  time.Duration
	AsyncQueryTimeout          time.Duration
	ConnectionCheckType        ConnectionCheckType
	PrimaryVisibilityConsensus bool

	ArchiveReadyWarning    int
	ArchiveReadyCritical   int
	ReplicationLagWarning  time.Duration
	ReplicationLagCritical time.Duration

	ServiceStartCommand   string
	ServiceStopCommand    string
	ServiceRestartCommand string
	ServiceReloadCommand  string
	ServicePromoteCommand string

	EventNotificationCommand string
	EventNotifications       []string

	VirtualIP     string
	NetworkCard   string
	ArpingCommand string

	// Supplemented keys (original_source/repmgr/configfile.h, not in the
	// distilled key set but not excluded by any stated Non-goal).
	PromoteCheckTimeout           time.Duration
	PromoteCheckInterval          time.Duration
	StandbyFollowTimeout          time.Duration
	StandbyReconnectTimeout       time.Duration
	WitnessSyncInterval           time.Duration
	ElectionRerunInterval         time.Duration
	ChildNodesCheckInterval       time.Duration
	ChildNodesDisconnectMinCount  int
	ChildNodesConnectedMinCount   int
	SiblingNodesDisconnectTimeout time.Duration
	RepmgrdExitOnInactiveNode     bool

	// Warnings collects unknown keys found while loading. Not fatal.
	Warnings []string
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, rerrors.New(rerrors.Configuration, "config.Load", err)
	}
	return fromProperties(p)
}

// Reload re-reads path and returns a fresh Config. Callers swap their
// pointer to the result; the old Config remains valid for anyone still
// holding a reference to it.
func Reload(path string) (*Config, error) {
	return Load(path)
}

var knownKeys = map[string]bool{
	"node_id": true, "node_name": true, "conninfo": true, "data_directory": true,
	"location": true, "priority": true, "replication_type": true, "use_replication_slots": true,
	"log_level": true, "log_facility": true, "log_file": true,
	"log_rotation_size": true, "log_rotation_age": true,
	"failover": true, "promote_command": true, "follow_command": true,
	"monitor_interval_secs": true, "reconnect_attempts": true, "reconnect_interval": true,
	"degraded_monitoring_timeout": true, "async_query_timeout": true,
	"connection_check_type": true, "primary_visibility_consensus": true,
	"archive_ready_warning": true, "archive_ready_critical": true,
	"replication_lag_warning": true, "replication_lag_critical": true,
	"service_start_command": true, "service_stop_command": true,
	"service_restart_command": true, "service_reload_command": true,
	"service_promote_command":    true,
	"event_notification_command": true, "event_notifications": true,
	"virtual_ip": true, "network_card": true, "arping_command": true,
	"promote_check_timeout": true, "promote_check_interval": true,
	"standby_follow_timeout": true, "standby_reconnect_timeout": true,
	"witness_sync_interval": true, "election_rerun_interval": true,
	"child_nodes_check_interval": true, "child_nodes_disconnect_min_count": true,
	"child_nodes_connected_min_count": true, "sibling_nodes_disconnect_timeout": true,
	"repmgrd_exit_on_inactive_node": true,
}

func fromProperties(p *properties.Properties) (*Config, error) {
	c := &Config{}
	var warnings []string

	for _, key := range p.Keys() {
		if !knownKeys[key] {
			warnings = append(warnings, fmt.Sprintf("unknown config key %q", key))
		}
	}
	c.Warnings = warnings

	var err error
	if c.NodeID, err = getInt32(p, "node_id", 0); err != nil {
		return nil, err
	}
	c.NodeName = p.GetString("node_name", "")
	c.Conninfo = p.GetString("conninfo", "")
	c.DataDirectory = p.GetString("data_directory", "")
	c.Location = p.GetString("location", "default")
	if c.Priority, err = getInt32(p, "priority", 100); err != nil {
		return nil, err
	}
	c.ReplicationType = p.GetString("replication_type", "physical")
	c.UseReplicationSlots = p.GetBool("use_replication_slots", true)

	c.LogLevel = p.GetString("log_level", "info")
	c.LogFacility = p.GetString("log_facility", "STDERR")
	c.LogFile = p.GetString("log_file", "")
	if c.LogRotationSize, err = getBytes(p, "log_rotation_size", 0); err != nil {
		return nil, err
	}
	if c.LogRotationAge, err = getSeconds(p, "log_rotation_age", 0); err != nil {
		return nil, err
	}

	failoverRaw := p.GetString("failover", string(FailoverManual))
	switch FailoverMode(failoverRaw) {
	case FailoverManual, FailoverAutomatic:
		c.Failover = FailoverMode(failoverRaw)
	default:
		return nil, rerrors.New(rerrors.Configuration, "config.fromProperties",
			fmt.Errorf("invalid failover mode %q, want manual or automatic", failoverRaw))
	}
	c.PromoteCommand = p.GetString("promote_command", "")
	c.FollowCommand = p.GetString("follow_command", "")

	if c.MonitorInterval, err = getSeconds(p, "monitor_interval_secs", 2*time.Second); err != nil {
		return nil, err
	}
	if c.ReconnectAttempts, err = getInt(p, "reconnect_attempts", 6); err != nil {
		return nil, err
	}
	if c.ReconnectInterval, err = getSeconds(p, "reconnect_interval", 10*time.Second); err != nil {
		return nil, err
	}
	if c.DegradedMonitoringTimeout, err = getSeconds(p, "degraded_monitoring_timeout", -1); err != nil {
		return nil, err
	}
	if c.AsyncQueryTimeout, err = getSeconds(p, "async_query_timeout", 60*time.Second); err != nil {
		return nil, err
	}

	checkRaw := p.GetString("connection_check_type", string(CheckPing))
	switch ConnectionCheckType(checkRaw) {
	case CheckPing, CheckQuery, CheckConnection:
		c.ConnectionCheckType = ConnectionCheckType(checkRaw)
	default:
		return nil, rerrors.New(rerrors.Configuration, "config.fromProperties",
			fmt.Errorf("invalid connection_check_type %q", checkRaw))
	}
	c.PrimaryVisibilityConsensus = p.GetBool("primary_visibility_consensus", false)

	if c.ArchiveReadyWarning, err = getInt(p, "archive_ready_warning", 16); err != nil {
		return nil, err
	}
	if c.ArchiveReadyCritical, err = getInt(p, "archive_ready_critical", 32); err != nil {
		return nil, err
	}
	if c.ReplicationLagWarning, err = getSeconds(p, "replication_lag_warning", 300*time.Second); err != nil {
		return nil, err
	}
	if c.ReplicationLagCritical, err = getSeconds(p, "replication_lag_critical", 600*time.Second); err != nil {
		return nil, err
	}

	c.ServiceStartCommand = p.GetString("service_start_command", "")
	c.ServiceStopCommand = p.GetString("service_stop_command", "")
	c.ServiceRestartCommand = p.GetString("service_restart_command", "")
	c.ServiceReloadCommand = p.GetString("service_reload_command", "")
	c.ServicePromoteCommand = p.GetString("service_promote_command", "")

	c.EventNotificationCommand = p.GetString("event_notification_command", "")
	if raw := p.GetString("event_notifications", ""); raw != "" {
		for _, ev := range strings.Split(raw, ",") {
			if ev = strings.TrimSpace(ev); ev != "" {
				c.EventNotifications = append(c.EventNotifications, ev)
			}
		}
	}

	c.VirtualIP = p.GetString("virtual_ip", "")
	c.NetworkCard = p.GetString("network_card", "")
	c.ArpingCommand = p.GetString("arping_command", "arping")

	if c.PromoteCheckTimeout, err = getSeconds(p, "promote_check_timeout", 60*time.Second); err != nil {
		return nil, err
	}
	if c.PromoteCheckInterval, err = getSeconds(p, "promote_check_interval", 1*time.Second); err != nil {
		return nil, err
	}
	if c.StandbyFollowTimeout, err = getSeconds(p, "standby_follow_timeout", 30*time.Second); err != nil {
		return nil, err
	}
	if c.StandbyReconnectTimeout, err = getSeconds(p, "standby_reconnect_timeout", 60*time.Second); err != nil {
		return nil, err
	}
	if c.WitnessSyncInterval, err = getSeconds(p, "witness_sync_interval", 15*time.Second); err != nil {
		return nil, err
	}
	if c.ElectionRerunInterval, err = getSeconds(p, "election_rerun_interval", 15*time.Second); err != nil {
		return nil, err
	}
	if c.ChildNodesCheckInterval, err = getSeconds(p, "child_nodes_check_interval", 5*time.Second); err != nil {
		return nil, err
	}
	if c.ChildNodesDisconnectMinCount, err = getInt(p, "child_nodes_disconnect_min_count", -1); err != nil {
		return nil, err
	}
	if c.ChildNodesConnectedMinCount, err = getInt(p, "child_nodes_connected_min_count", -1); err != nil {
		return nil, err
	}
	if c.SiblingNodesDisconnectTimeout, err = getSeconds(p, "sibling_nodes_disconnect_timeout", 30*time.Second); err != nil {
		return nil, err
	}
	c.RepmgrdExitOnInactiveNode = p.GetBool("repmgrd_exit_on_inactive_node", false)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.NodeID <= 0 {
		return rerrors.New(rerrors.Configuration, "config.validate", fmt.Errorf("node_id must be set and positive"))
	}
	if c.NodeName == "" {
		return rerrors.New(rerrors.Configuration, "config.validate", fmt.Errorf("node_name must be set"))
	}
	if c.Conninfo == "" {
		return rerrors.New(rerrors.Configuration, "config.validate", fmt.Errorf("conninfo must be set"))
	}
	if c.Priority < 0 {
		return rerrors.New(rerrors.Configuration, "config.validate", fmt.Errorf("priority must not be negative"))
	}
	if c.VirtualIP != "" && c.NetworkCard == "" {
		return rerrors.New(rerrors.Configuration, "config.validate", fmt.Errorf("network_card must be set when virtual_ip is set"))
	}
	return nil
}

func getInt(p *properties.Properties, key string, def int) (int, error) {
	raw, ok := p.Get(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, rerrors.New(rerrors.Configuration, "config.getInt", fmt.Errorf("%s: %w", key, err))
	}
	return v, nil
}

func getInt32(p *properties.Properties, key string, def int32) (int32, error) {
	v, err := getInt(p, key, int(def))
	return int32(v), err
}

func getSeconds(p *properties.Properties, key string, def time.Duration) (time.Duration, error) {
	raw, ok := p.Get(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, rerrors.New(rerrors.Configuration, "config.getSeconds", fmt.Errorf("%s: %w", key, err))
	}
	return time.Duration(v) * time.Second, nil
}

func getBytes(p *properties.Properties, key string, def time.Duration) (time.Duration, error) {
	raw, ok := p.Get(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, rerrors.New(rerrors.Configuration, "config.getBytes", fmt.Errorf("%s: %w", key, err))
	}
	return time.Duration(v), nil
}
