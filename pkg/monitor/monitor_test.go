package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/health"
)

func newTestDaemon() *Daemon {
	return &Daemon{
		cfg:   &config.Config{},
		state: StateNormal,
	}
}

func TestSetStateTracksDegradedSince(t *testing.T) {
	d := newTestDaemon()

	assert.Equal(t, time.Duration(0), d.degradedFor())

	d.setState(StateDegraded)
	assert.True(t, d.degradedFor() >= 0)

	d.setState(StateNormal)
	assert.Equal(t, time.Duration(0), d.degradedFor())
}

func TestSetStateDoesNotResetDegradedSinceOnRepeatedDegraded(t *testing.T) {
	d := newTestDaemon()
	d.setState(StateDegraded)
	first := d.degradedSince

	time.Sleep(time.Millisecond)
	d.setState(StateDegraded)

	assert.Equal(t, first, d.degradedSince)
}

func TestNewCheckerMapsConfiguredCheckType(t *testing.T) {
	tests := []struct {
		name     string
		check    config.ConnectionCheckType
		expected health.CheckType
	}{
		{"default falls back to ping", "", health.CheckTypePing},
		{"query", config.CheckQuery, health.CheckTypeQuery},
		{"connection", config.CheckConnection, health.CheckTypeConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newChecker(nil, &config.Config{ConnectionCheckType: tt.check})
			assert.Equal(t, tt.expected, checker.Type())
		})
	}
}
