package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
cache:
  path: /var/lib/selectors/cache.json
  max_entries: 500
  max_versions: 3
  fuzzy_threshold: 0.7
  cleanup_interval_hours: 2
  confidence_floor: 0.2
  unused_days: 14
  min_pattern_samples: 4
  prediction_threshold: 0.8
discovery:
  budget_seconds: 8
  max_depth: 12
  excluded:
    - coordinate_proximity
healing:
  budget_seconds: 20
  preferred:
    - pattern_prediction
pattern:
  predict_steps: 3
logging:
  path: /tmp/selector.log
  level: debug
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Cache.Path != "/var/lib/selectors/cache.json" {
		t.Errorf("expected cache path /var/lib/selectors/cache.json, got %s", cfg.Cache.Path)
	}
	if cfg.Cache.MaxEntries != 500 || cfg.Cache.MaxVersions != 3 {
		t.Errorf("expected cache limits 500/3, got %d/%d", cfg.Cache.MaxEntries, cfg.Cache.MaxVersions)
	}
	if cfg.Cache.FuzzyThreshold != 0.7 {
		t.Errorf("expected fuzzy threshold 0.7, got %v", cfg.Cache.FuzzyThreshold)
	}
	if cfg.Cache.CleanupIntervalHours != 2 || cfg.Cache.UnusedDays != 14 {
		t.Errorf("expected cleanup 2h unused 14d, got %d/%d",
			cfg.Cache.CleanupIntervalHours, cfg.Cache.UnusedDays)
	}
	if cfg.Cache.ConfidenceFloor != 0.2 || cfg.Cache.PredictionThreshold != 0.8 {
		t.Errorf("expected floor 0.2 threshold 0.8, got %v/%v",
			cfg.Cache.ConfidenceFloor, cfg.Cache.PredictionThreshold)
	}
	if cfg.Cache.MinPatternSamples != 4 {
		t.Errorf("expected min_pattern_samples 4, got %d", cfg.Cache.MinPatternSamples)
	}
	if cfg.Discovery.BudgetSeconds != 8 || cfg.Discovery.MaxDepth != 12 {
		t.Errorf("expected discovery 8s depth 12, got %v/%d", cfg.Discovery.BudgetSeconds, cfg.Discovery.MaxDepth)
	}
	if len(cfg.Discovery.Excluded) != 1 || cfg.Discovery.Excluded[0] != "coordinate_proximity" {
		t.Errorf("expected excluded [coordinate_proximity], got %v", cfg.Discovery.Excluded)
	}
	if cfg.Healing.BudgetSeconds != 20 {
		t.Errorf("expected healing budget 20, got %v", cfg.Healing.BudgetSeconds)
	}
	if len(cfg.Healing.Preferred) != 1 || cfg.Healing.Preferred[0] != "pattern_prediction" {
		t.Errorf("expected preferred [pattern_prediction], got %v", cfg.Healing.Preferred)
	}
	if cfg.Pattern.PredictSteps != 3 {
		t.Errorf("expected predict_steps 3, got %d", cfg.Pattern.PredictSteps)
	}
	if cfg.Logging.Path != "/tmp/selector.log" || cfg.Logging.Level != "debug" {
		t.Errorf("expected logging /tmp/selector.log debug, got %s %s", cfg.Logging.Path, cfg.Logging.Level)
	}
}

func TestLoad_DefaultsFillZeroFields(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
cache:
  max_entries: 42
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Cache.MaxEntries != 42 {
		t.Errorf("explicit value overwritten: %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.Path == "" {
		t.Error("expected default cache path")
	}
	if cfg.Cache.BackupDir == "" {
		t.Error("expected default backup dir")
	}
	if cfg.Cache.MaxVersions != 5 {
		t.Errorf("expected default max_versions 5, got %d", cfg.Cache.MaxVersions)
	}
	if cfg.Cache.CleanupIntervalHours != 6 || cfg.Cache.ConfidenceFloor != 0.1 {
		t.Errorf("expected default cleanup 6h floor 0.1, got %d/%v",
			cfg.Cache.CleanupIntervalHours, cfg.Cache.ConfidenceFloor)
	}
	if cfg.Cache.UnusedDays != 7 || cfg.Cache.MinPatternSamples != 3 {
		t.Errorf("expected default unused 7d samples 3, got %d/%d",
			cfg.Cache.UnusedDays, cfg.Cache.MinPatternSamples)
	}
	if cfg.Cache.PredictionThreshold != 0.7 {
		t.Errorf("expected default prediction threshold 0.7, got %v", cfg.Cache.PredictionThreshold)
	}
	if cfg.Discovery.BudgetSeconds != 15 {
		t.Errorf("expected default discovery budget 15, got %v", cfg.Discovery.BudgetSeconds)
	}
	if cfg.Healing.BudgetSeconds != 30 {
		t.Errorf("expected default healing budget 30, got %v", cfg.Healing.BudgetSeconds)
	}
	if cfg.Pattern.PredictSteps != 1 {
		t.Errorf("expected default predict_steps 1, got %d", cfg.Pattern.PredictSteps)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Logging.Level)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `cache: [invalid yaml`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromDir_ConfigYaml(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `logging: {level: warn}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadFromDir_ConfigYml(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")

	content := `logging: {level: error}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Logging.Level != "error" {
		t.Errorf("expected level error, got %s", cfg.Logging.Level)
	}
}

func TestLoadFromDir_NoConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should return defaults
	if cfg.Cache.MaxEntries != 10000 {
		t.Errorf("expected default max_entries 10000, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadFromDir_PrefersYamlOverYml(t *testing.T) {
	dir := t.TempDir()

	// Create both config.yaml and config.yml
	yamlContent := `logging: {level: debug}`
	ymlContent := `logging: {level: error}`

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(ymlContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should prefer config.yaml
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug (from config.yaml), got %s", cfg.Logging.Level)
	}
}
