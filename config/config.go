package config

import (
	"fmt"
	"os"

	"github.com/Proxy-Agent-Network/highcourt/logging"
	"gopkg.in/yaml.v3"
)

// CourtConfig fixes the adjudication policy for this deployment. The
// mock screens disagree on thresholds; one consistent policy lives here.
type CourtConfig struct {
	PanelSize       int     `yaml:"panel_size"`       // N, must be odd
	Quorum          int     `yaml:"quorum"`           // strict majority of N
	SummonsWindow   int     `yaml:"summons_window"`   // minutes
	VotingWindow    int     `yaml:"voting_window"`    // minutes
	SweepInterval   int     `yaml:"sweep_interval"`   // seconds
	Tiers           []int64 `yaml:"tiers"`            // reputation thresholds, widening order
	MinBond         int64   `yaml:"min_bond"`         // sats
	RedraftCooldown int     `yaml:"redraft_cooldown"` // minutes non-responders sit out
	MaxRedrafts     int     `yaml:"max_redrafts"`
	QuorumKeyPath   string  `yaml:"quorum_key_path"` // tcrsa KeyMeta, JSON
}

type SlashingConfig struct {
	DissentSlashBps    int64 `yaml:"dissent_slash_bps"`    // of bond, per severity unit
	DissentReputation  int64 `yaml:"dissent_reputation"`   // negative
	NonResponsePenalty int64 `yaml:"non_response_penalty"` // reputation, negative
	RewardRateBps      int64 `yaml:"reward_rate_bps"`      // of dispute value, split across majority
	RewardReputation   int64 `yaml:"reward_reputation"`
}

type EntropyConfig struct {
	Type       string `yaml:"type"` // fixed | blockhash
	RPCAddress string `yaml:"rpc_address"`
	FixedSeed  string `yaml:"fixed_seed"` // hex, testing only
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	Court    *CourtConfig    `yaml:"court"`
	Slashing *SlashingConfig `yaml:"slashing"`
	Entropy  *EntropyConfig  `yaml:"entropy"`
	Storage  *StorageConfig  `yaml:"storage"`
	API      *APIConfig      `yaml:"api"`
	Log      *logging.Config `yaml:"log"`
}

func NewConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig is the policy the production court runs with.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (cfg *Config) ApplyDefaults() {
	if cfg.Court == nil {
		cfg.Court = &CourtConfig{}
	}
	c := cfg.Court
	if c.PanelSize == 0 {
		c.PanelSize = 7
	}
	if c.Quorum == 0 {
		c.Quorum = c.PanelSize/2 + 1
	}
	if c.SummonsWindow == 0 {
		c.SummonsWindow = 240 // 4h
	}
	if c.VotingWindow == 0 {
		c.VotingWindow = 1440 // 24h
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30
	}
	if len(c.Tiers) == 0 {
		c.Tiers = []int64{700, 600, 500}
	}
	if c.MinBond == 0 {
		c.MinBond = 1_000_000
	}
	if c.RedraftCooldown == 0 {
		c.RedraftCooldown = 1440
	}
	if c.MaxRedrafts == 0 {
		c.MaxRedrafts = 3
	}
	if cfg.Slashing == nil {
		cfg.Slashing = &SlashingConfig{}
	}
	s := cfg.Slashing
	if s.DissentSlashBps == 0 {
		s.DissentSlashBps = 600 // 6% per severity unit, 30% at severity 5
	}
	if s.DissentReputation == 0 {
		s.DissentReputation = -25
	}
	if s.NonResponsePenalty == 0 {
		s.NonResponsePenalty = -50
	}
	if s.RewardRateBps == 0 {
		s.RewardRateBps = 500 // 5% of dispute value
	}
	if s.RewardReputation == 0 {
		s.RewardReputation = 10
	}
	if cfg.Entropy == nil {
		cfg.Entropy = &EntropyConfig{Type: "blockhash"}
	}
	if cfg.Entropy.Type == "" {
		cfg.Entropy.Type = "blockhash"
	}
	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "dbfile/court"
	}
	if cfg.API == nil {
		cfg.API = &APIConfig{Listen: ":8026"}
	}
	if cfg.Log == nil {
		cfg.Log = &logging.Config{Level: "info"}
	}
}

func (cfg *Config) Validate() error {
	c := cfg.Court
	if c.PanelSize%2 == 0 {
		return fmt.Errorf("panel size %d must be odd", c.PanelSize)
	}
	if c.Quorum <= c.PanelSize/2 || c.Quorum > c.PanelSize {
		return fmt.Errorf("quorum %d is not a strict majority of panel size %d", c.Quorum, c.PanelSize)
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("at least one eligibility tier is required")
	}
	for i := 1; i < len(c.Tiers); i++ {
		if c.Tiers[i] >= c.Tiers[i-1] {
			return fmt.Errorf("eligibility tiers must be strictly widening")
		}
	}
	return nil
}
