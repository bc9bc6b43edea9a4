// Package config loads claude-recall's layered configuration: cobra flag
// defaults, then CLAUDE_RECALL_*/RECALL_*/LESSONS_* environment variables,
// then config.json, then hard defaults — grounded on the teacher's
// viper-based config.Load() (cmd/claudeops/main.go + internal/config).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pbrown/claude-recall/internal/models"
)

// Config holds all runtime configuration for the recall engine
// (spec.md §6 file layout and environment variables).
type Config struct {
	Base              string
	StateDir          string
	ProjectDir        string
	DebugLevel        int
	SessionID         string
	Enabled           bool
	StaleDays         int
	DecayIntervalDays int
	LockTimeoutSec    int
	JaccardThreshold  float64
	ThemeKeywords     map[string][]string
	SummarizerModel   string
	AnthropicAPIKey   string
}

// defaults mirror spec.md's component defaults (StaleDaysDefault,
// 7-day decay interval, 5s lock timeout, 0.8 Jaccard threshold).
func defaults() Config {
	return Config{
		StaleDays:         models.StaleDaysDefault,
		DecayIntervalDays: 7,
		LockTimeoutSec:    5,
		JaccardThreshold:  0.8,
		Enabled:           true,
		SummarizerModel:   "claude-haiku-4-5",
	}
}

// Load builds a Config from, in precedence order: cobra flag values
// already bound into v, CLAUDE_RECALL_*/RECALL_*/LESSONS_* env vars, then
// $CLAUDE_RECALL_BASE/config.json, then hard defaults.
func Load(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	cfg := defaults()

	base := firstNonEmpty(v.GetString("base"), os.Getenv("CLAUDE_RECALL_BASE"), defaultBase())
	cfg.Base = base

	if err := mergeConfigFile(v, filepath.Join(base, "config.json")); err != nil {
		// A missing or corrupt config.json falls back to defaults/env/flags,
		// matching spec.md §8's fatal-errors-reset-to-empty rule.
		_ = err
	}

	bindEnv(v)

	cfg.StateDir = firstNonEmpty(v.GetString("state_dir"), defaultStateDir(base))
	cfg.ProjectDir = firstNonEmpty(v.GetString("project_dir"), os.Getenv("PROJECT_DIR"), detectProjectDir())
	cfg.DebugLevel = intOr(v.GetInt("debug"), cfg.DebugLevel)
	cfg.SessionID = v.GetString("session")
	cfg.SummarizerModel = firstNonEmpty(v.GetString("summarizer_model"), cfg.SummarizerModel)
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")

	if v.IsSet("enabled") {
		cfg.Enabled = v.GetBool("enabled")
	}
	if v.IsSet("stale_days") {
		cfg.StaleDays = v.GetInt("stale_days")
	}
	if v.IsSet("decay_interval_days") {
		cfg.DecayIntervalDays = v.GetInt("decay_interval_days")
	}
	if v.IsSet("lock_timeout_sec") {
		cfg.LockTimeoutSec = v.GetInt("lock_timeout_sec")
	}
	if v.IsSet("jaccard_threshold") {
		cfg.JaccardThreshold = v.GetFloat64("jaccard_threshold")
	}

	if themes := v.GetStringMapStringSlice("theme_keywords"); len(themes) > 0 {
		cfg.ThemeKeywords = themes
	}

	return cfg
}

// bindEnv wires the three accepted environment-variable prefixes
// (spec.md §6: CLAUDE_RECALL_*, plus the broader claude-recall design
// space's RECALL_* and LESSONS_* aliases) onto v's keys.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{"enabled", "stale_days", "decay_interval_days", "lock_timeout_sec", "jaccard_threshold", "summarizer_model"} {
		upper := strings.ToUpper(key)
		_ = v.BindEnv(key, "CLAUDE_RECALL_"+upper, "RECALL_"+upper, "LESSONS_"+upper)
	}
	_ = v.BindEnv("debug", "CLAUDE_RECALL_DEBUG")
	_ = v.BindEnv("session", "CLAUDE_RECALL_SESSION")
	_ = v.BindEnv("state_dir", "CLAUDE_RECALL_STATE")
	_ = v.BindEnv("project_dir", "PROJECT_DIR")
}

func mergeConfigFile(v *viper.Viper, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return err
	}
	return v.MergeConfigMap(asMap)
}

func defaultBase() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude-recall"
	}
	return filepath.Join(home, ".claude-recall")
}

func defaultStateDir(base string) string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "claude-recall")
	}
	return filepath.Join(base, "state")
}

// detectProjectDir walks up from the working directory to the nearest
// .git, per spec.md §6's PROJECT_DIR auto-detection rule.
func detectProjectDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info != nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intOr(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
