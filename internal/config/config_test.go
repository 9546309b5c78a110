package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := DefaultConfig()
	if cfg.Store.BusyTimeoutMs != def.Store.BusyTimeoutMs {
		t.Errorf("expected default busy timeout %d, got %d",
			def.Store.BusyTimeoutMs, cfg.Store.BusyTimeoutMs)
	}
	if cfg.Store.MaxAttempts != def.Store.MaxAttempts {
		t.Errorf("expected default max attempts %d, got %d",
			def.Store.MaxAttempts, cfg.Store.MaxAttempts)
	}
	if cfg.Patch.Rules["sprintf"] != "formatstr" {
		t.Errorf("expected default sprintf rule, got %v", cfg.Patch.Rules)
	}
	if cfg.Patch.Rules["vsprintf"] != "vformatstr" {
		t.Errorf("expected default vsprintf rule, got %v", cfg.Patch.Rules)
	}
	if cfg.Logging.Format != "human" || cfg.Logging.Level != "info" {
		t.Errorf("unexpected logging defaults %+v", cfg.Logging)
	}
}

func TestLoadPartialFileKeepsOtherDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
store:
  maxAttempts: 9
scan:
  exclude:
    - /extern/
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.MaxAttempts != 9 {
		t.Errorf("expected maxAttempts 9, got %d", cfg.Store.MaxAttempts)
	}
	if cfg.Store.BusyTimeoutMs != 5000 {
		t.Errorf("expected default busy timeout, got %d", cfg.Store.BusyTimeoutMs)
	}
	if len(cfg.Scan.Exclude) != 1 || cfg.Scan.Exclude[0] != "/extern/" {
		t.Errorf("unexpected exclude list %v", cfg.Scan.Exclude)
	}
	if cfg.Patch.Rules["sprintf"] != "formatstr" {
		t.Errorf("expected default patch rules to survive, got %v", cfg.Patch.Rules)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	content := `
store:
  maxAttempts: 0
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("expected validation error for maxAttempts 0")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName),
		[]byte("store: [not a mapping"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Store.MaxAttempts = 4
	cfg.Scan.Exclude = []string{"generated/"}
	cfg.Patch.Rules["snprintf"] = "formatstr_cat"

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Store.MaxAttempts != 4 {
		t.Errorf("expected maxAttempts 4, got %d", loaded.Store.MaxAttempts)
	}
	if len(loaded.Scan.Exclude) != 1 || loaded.Scan.Exclude[0] != "generated/" {
		t.Errorf("unexpected exclude list %v", loaded.Scan.Exclude)
	}
	if loaded.Patch.Rules["snprintf"] != "formatstr_cat" {
		t.Errorf("expected custom rule to survive, got %v", loaded.Patch.Rules)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Store.BackoffBaseMs = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero backoff")
	}

	cfg = DefaultConfig()
	cfg.Store.BusyTimeoutMs = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative busy timeout")
	}
}
