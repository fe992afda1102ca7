package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusUpdateAppliesHysteresis(t *testing.T) {
	cfg := Config{Retries: 3}
	s := NewStatus()
	assert.True(t, s.Healthy)

	fail := Result{Healthy: false, CheckedAt: time.Now()}

	s.Update(fail, cfg)
	assert.True(t, s.Healthy, "first failure should not flip state")
	assert.Equal(t, 1, s.ConsecutiveFailures)

	s.Update(fail, cfg)
	assert.True(t, s.Healthy, "second failure should not flip state")

	s.Update(fail, cfg)
	assert.False(t, s.Healthy, "third consecutive failure should flip to unhealthy")
	assert.Equal(t, 3, s.ConsecutiveFailures)
}

func TestStatusUpdateClearsFailuresOnSuccess(t *testing.T) {
	cfg := Config{Retries: 3}
	s := NewStatus()

	fail := Result{Healthy: false, CheckedAt: time.Now()}
	ok := Result{Healthy: true, CheckedAt: time.Now()}

	s.Update(fail, cfg)
	s.Update(fail, cfg)
	assert.Equal(t, 2, s.ConsecutiveFailures)

	s.Update(ok, cfg)
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.ConsecutiveFailures)
	assert.Equal(t, 1, s.ConsecutiveSuccesses)
}

func TestStatusRecoversFromUnhealthyOnSingleSuccess(t *testing.T) {
	cfg := Config{Retries: 2}
	s := NewStatus()
	fail := Result{Healthy: false, CheckedAt: time.Now()}

	s.Update(fail, cfg)
	s.Update(fail, cfg)
	assert.False(t, s.Healthy)

	s.Update(Result{Healthy: true, CheckedAt: time.Now()}, cfg)
	assert.True(t, s.Healthy)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}
