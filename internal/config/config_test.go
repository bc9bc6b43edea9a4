package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaultsWhenNothingSet(t *testing.T) {
	t.Setenv("CLAUDE_RECALL_BASE", t.TempDir())
	t.Setenv("CLAUDE_RECALL_DEBUG", "")
	t.Setenv("PROJECT_DIR", "")

	cfg := Load(viper.New())
	if cfg.StaleDays == 0 || cfg.DecayIntervalDays == 0 || cfg.LockTimeoutSec == 0 {
		t.Fatalf("expected nonzero defaults, got %+v", cfg)
	}
	if cfg.JaccardThreshold != 0.8 {
		t.Fatalf("expected default Jaccard threshold 0.8, got %v", cfg.JaccardThreshold)
	}
	if !cfg.Enabled {
		t.Fatalf("expected enabled by default")
	}
}

func TestLoadReadsConfigJSON(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "config.json")
	raw, _ := json.Marshal(map[string]interface{}{
		"stale_days":        45,
		"jaccard_threshold": 0.65,
		"enabled":           false,
	})
	if err := os.WriteFile(configPath, raw, 0644); err != nil {
		t.Fatalf("write config.json: %v", err)
	}
	t.Setenv("CLAUDE_RECALL_BASE", base)

	cfg := Load(viper.New())
	if cfg.StaleDays != 45 {
		t.Fatalf("expected stale_days=45 from config.json, got %d", cfg.StaleDays)
	}
	if cfg.JaccardThreshold != 0.65 {
		t.Fatalf("expected jaccard_threshold=0.65 from config.json, got %v", cfg.JaccardThreshold)
	}
	if cfg.Enabled {
		t.Fatalf("expected enabled=false from config.json")
	}
}

func TestEnvDebugLevelOverridesConfigFile(t *testing.T) {
	base := t.TempDir()
	raw, _ := json.Marshal(map[string]interface{}{"debug": 1})
	if err := os.WriteFile(filepath.Join(base, "config.json"), raw, 0644); err != nil {
		t.Fatalf("write config.json: %v", err)
	}
	t.Setenv("CLAUDE_RECALL_BASE", base)
	t.Setenv("CLAUDE_RECALL_DEBUG", "2")

	cfg := Load(viper.New())
	if cfg.DebugLevel != 2 {
		t.Fatalf("expected debug level 2 from env, got %d", cfg.DebugLevel)
	}
}

func TestStateDirDefaultsUnderBase(t *testing.T) {
	base := t.TempDir()
	t.Setenv("CLAUDE_RECALL_BASE", base)
	t.Setenv("XDG_STATE_HOME", "")

	cfg := Load(viper.New())
	if cfg.StateDir != filepath.Join(base, "state") {
		t.Fatalf("expected state dir under base, got %s", cfg.StateDir)
	}
}
