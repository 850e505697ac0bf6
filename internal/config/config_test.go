package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLA_TARGET_HIGH_MINUTES", "")
	t.Setenv("ESCALATION_SWEEP_INTERVAL_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8*time.Hour, cfg.SLA.Targets[domain.PriorityHigh])
	assert.Equal(t, 2*time.Hour, cfg.SLA.Targets[domain.PriorityUrgent])
	assert.Equal(t, 72*time.Hour, cfg.SLA.Targets[domain.PriorityLow])
	assert.Zero(t, cfg.Escalation.SweepInterval())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_TARGET_URGENT_MINUTES", "45")
	t.Setenv("SLA_SNAPSHOT_TTL_SECONDS", "5")
	t.Setenv("ESCALATION_SWEEP_INTERVAL_SECONDS", "60")
	t.Setenv("APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.SLA.Targets[domain.PriorityUrgent])
	assert.Equal(t, 5*time.Second, cfg.SLA.SnapshotTTL())
	assert.Equal(t, time.Minute, cfg.Escalation.SweepInterval())
	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
}

func TestLoadRejectsNonPositiveTarget(t *testing.T) {
	t.Setenv("SLA_TARGET_MEDIUM_MINUTES", "0")

	_, err := Load()
	assert.Error(t, err)
}
