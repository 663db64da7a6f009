package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7, cfg.Court.PanelSize)
	assert.Equal(t, 5, cfg.Court.Quorum)
	assert.Equal(t, 240, cfg.Court.SummonsWindow)
	assert.Equal(t, []int64{700, 600, 500}, cfg.Court.Tiers)
	assert.Equal(t, int64(-50), cfg.Slashing.NonResponsePenalty)
}

func TestNewConfig_ReadYaml(t *testing.T) {
	raw := `
court:
  panel_size: 9
  quorum: 6
  summons_window: 120
slashing:
  reward_rate_bps: 250
storage:
  path: /tmp/courtdb
api:
  listen: ":9000"
log:
  level: warn
`
	path := filepath.Join(t.TempDir(), "courtd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))
	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Court.PanelSize)
	assert.Equal(t, 6, cfg.Court.Quorum)
	assert.Equal(t, 120, cfg.Court.SummonsWindow)
	assert.Equal(t, int64(250), cfg.Slashing.RewardRateBps)
	assert.Equal(t, "/tmp/courtdb", cfg.Storage.Path)
	assert.Equal(t, ":9000", cfg.API.Listen)
	// untouched sections still get defaults
	assert.Equal(t, 1440, cfg.Court.VotingWindow)
	assert.Equal(t, int64(600), cfg.Slashing.DissentSlashBps)
}

func TestValidate_RejectsBadPolicies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Court.PanelSize = 8
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Court.Quorum = 3 // not a strict majority of 7
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Court.Tiers = []int64{600, 700}
	assert.Error(t, cfg.Validate())
}
