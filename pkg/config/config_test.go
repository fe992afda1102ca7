package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "repmgr.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMinimalValid(t *testing.T) {
	path := writeConf(t, `
node_id = 1
node_name = node1
conninfo = host=localhost dbname=repmgr user=repmgr
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cfg.NodeID)
	assert.Equal(t, "node1", cfg.NodeName)
	assert.Equal(t, FailoverManual, cfg.Failover)
	assert.Equal(t, CheckPing, cfg.ConnectionCheckType)
	assert.EqualValues(t, 100, cfg.Priority)
}

func TestLoadUnknownKeyIsWarningNotFatal(t *testing.T) {
	path := writeConf(t, `
node_id = 1
node_name = node1
conninfo = host=localhost
some_future_key = whatever
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "some_future_key")
}

func TestLoadInvalidFailoverModeIsFatal(t *testing.T) {
	path := writeConf(t, `
node_id = 1
node_name = node1
conninfo = host=localhost
failover = sometimes
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingRequiredFieldsIsFatal(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing node_id", "node_name = n1\nconninfo = host=localhost\n"},
		{"missing node_name", "node_id = 1\nconninfo = host=localhost\n"},
		{"missing conninfo", "node_id = 1\nnode_name = n1\n"},
		{"vip without network card", "node_id = 1\nnode_name = n1\nconninfo = host=localhost\nvirtual_ip = 10.0.0.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConf(t, tt.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadDurationsAndListsParsed(t *testing.T) {
	path := writeConf(t, `
node_id = 2
node_name = node2
conninfo = host=localhost
monitor_interval_secs = 5
reconnect_attempts = 3
event_notifications = standby_register, standby_promote ,repmgrd_failover_promote
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, int(cfg.MonitorInterval.Seconds()))
	assert.Equal(t, 3, cfg.ReconnectAttempts)
	assert.Equal(t, []string{"standby_register", "standby_promote", "repmgrd_failover_promote"}, cfg.EventNotifications)
}
