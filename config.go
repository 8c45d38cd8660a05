package senderwatch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full senderwatch configuration.
type Config struct {
	// AccountsFile is the YAML credential file; empty falls back to the
	// environment pair.
	AccountsFile string `yaml:"accounts_file"`
	DBPath       string `yaml:"db_path"`
	// DataDir receives the per-domain snapshot documents.
	DataDir string `yaml:"data_dir"`
	// EvidenceDir receives screenshots; empty disables capture.
	EvidenceDir string `yaml:"evidence_dir"`

	// Listen is the read-API bind address; empty disables the API.
	Listen string `yaml:"listen"`

	DashboardURL string `yaml:"dashboard_url"`
	Headless     *bool  `yaml:"headless"`
	// BrowserURL targets an already-running browser over its devtools
	// websocket instead of launching one.
	BrowserURL string `yaml:"browser_url"`

	Worker     WorkerConfig     `yaml:"worker"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

// WorkerConfig overrides the per-account lifecycle cadence. Zero values
// keep the defaults.
type WorkerConfig struct {
	CycleMinutes           int `yaml:"cycle_minutes"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	ConnectAttempts        int `yaml:"connect_attempts"`
	LoginAttempts          int `yaml:"login_attempts"`
	InsightsRangeDays      int `yaml:"insights_range_days"`
}

// CycleInterval returns the cycle cadence as a duration.
func (c WorkerConfig) CycleInterval() time.Duration {
	return time.Duration(c.CycleMinutes) * time.Minute
}

// SupervisorConfig overrides the fleet cadence. Zero values keep the
// defaults; MaxRestarts 0 means restart forever.
type SupervisorConfig struct {
	PollSeconds     int `yaml:"poll_seconds"`
	CooldownSeconds int `yaml:"cooldown_seconds"`
	StaggerSeconds  int `yaml:"stagger_seconds"`
	MaxRestarts     int `yaml:"max_restarts"`
}

// Poll returns the liveness poll interval.
func (c SupervisorConfig) Poll() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// Cooldown returns the death-to-restart wait.
func (c SupervisorConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Stagger returns the delay between consecutive worker spawns.
func (c SupervisorConfig) Stagger() time.Duration {
	return time.Duration(c.StaggerSeconds) * time.Second
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		AccountsFile: "accounts.yaml",
		DBPath:       "senderwatch.db",
		DataDir:      "data",
		EvidenceDir:  "evidence",
		Listen:       ":8600",
	}
}

// LoadConfig reads and parses a YAML config file, merged over defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Worker.CycleMinutes < 0 {
		return fmt.Errorf("worker.cycle_minutes must not be negative")
	}
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("supervisor.max_restarts must not be negative")
	}
	return nil
}
