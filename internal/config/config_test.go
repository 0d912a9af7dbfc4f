package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gateway.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", cfg.Gateway.ListenAddr)
	}
	if cfg.Sessions.BoundaryLockTTLMs != 5000 {
		t.Fatalf("expected default boundary lock ttl, got %d", cfg.Sessions.BoundaryLockTTLMs)
	}
}

func TestLoadReadsYAMLAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_LISTEN_ADDR", ":9090")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "gateway:\n  listen_addr: \"${TEST_LISTEN_ADDR}\"\nsessions:\n  boundary_lock_ttl_ms: 3000\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gateway.ListenAddr != ":9090" {
		t.Fatalf("expected expanded listen addr, got %q", cfg.Gateway.ListenAddr)
	}
	if cfg.Sessions.BoundaryLockTTLMs != 3000 {
		t.Fatalf("expected yaml override, got %d", cfg.Sessions.BoundaryLockTTLMs)
	}
}

func TestEnvOverrideWinsOverYAML(t *testing.T) {
	t.Setenv("BOUNDARY_LOCK_TTL_MS", "7000")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("sessions:\n  boundary_lock_ttl_ms: 3000\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Sessions.BoundaryLockTTLMs != 7000 {
		t.Fatalf("expected env override to win, got %d", cfg.Sessions.BoundaryLockTTLMs)
	}
}

func TestValidateRejectsZeroLockTTL(t *testing.T) {
	cfg := Default()
	cfg.Sessions.BoundaryLockTTLMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for zero lock ttl")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
