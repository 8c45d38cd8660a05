package senderwatch

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Listen != ":8600" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
}

func TestLoadConfig(t *testing.T) {
	yaml := `
accounts_file: "/etc/senderwatch/accounts.yaml"
db_path: "/var/lib/senderwatch/stats.db"
data_dir: "/var/lib/senderwatch/data"
evidence_dir: ""
listen: ":9090"
headless: false
worker:
  cycle_minutes: 30
  max_consecutive_failures: 3
supervisor:
  stagger_seconds: 10
  max_restarts: 5
`
	f, err := os.CreateTemp("", "config_test_*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	f.WriteString(yaml)
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Worker.CycleInterval() != 30*time.Minute {
		t.Errorf("CycleInterval = %v", cfg.Worker.CycleInterval())
	}
	if cfg.Supervisor.Stagger() != 10*time.Second {
		t.Errorf("Stagger = %v", cfg.Supervisor.Stagger())
	}
	if cfg.Worker.MaxConsecutiveFailures != 3 {
		t.Errorf("MaxConsecutiveFailures = %d", cfg.Worker.MaxConsecutiveFailures)
	}
	if cfg.Supervisor.MaxRestarts != 5 {
		t.Errorf("MaxRestarts = %d", cfg.Supervisor.MaxRestarts)
	}
	if cfg.Headless == nil || *cfg.Headless {
		t.Error("headless override not applied")
	}
	if cfg.EvidenceDir != "" {
		t.Errorf("EvidenceDir = %q, want empty (capture disabled)", cfg.EvidenceDir)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/senderwatch.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_BadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty db_path should fail validation")
	}

	cfg = DefaultConfig()
	cfg.Supervisor.MaxRestarts = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative max_restarts should fail validation")
	}
}
