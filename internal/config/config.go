// Package config loads the service's layered configuration: a YAML file
// with ${VAR}-style environment expansion, then a fixed set of named
// environment variable overrides applied on top, matching the teacher's
// internal/config/loader.go shape without its $include/JSON5 machinery,
// which this single-file service has no need for.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig controls the inbound HTTP surface.
type GatewayConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// SessionsConfig controls session boundary detection and locking.
type SessionsConfig struct {
	BoundaryLockTTLMs     int `yaml:"boundary_lock_ttl_ms"`
	BoundaryAcquireTimeoutMs int `yaml:"boundary_acquire_timeout_ms"`
}

// SchedulingConfig controls appointment scheduling defaults.
type SchedulingConfig struct {
	ClinicCacheWarmTTLSeconds    int `yaml:"clinic_cache_warm_ttl_seconds"`
	PatientUpsertCacheSeconds    int `yaml:"patient_upsert_cache_seconds"`
}

// PolicyConfig points at the compiled rule bundle to load.
type PolicyConfig struct {
	BundlePath string `yaml:"bundle_path"`
}

// LLMTierDefault pins one tier's compiled-in fallback provider/model.
type LLMTierDefault struct {
	Tier     string `yaml:"tier"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// LLMConfig controls provider credentials and tier defaults.
type LLMConfig struct {
	AnthropicAPIKey string           `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string           `yaml:"openai_api_key"`
	Defaults        []LLMTierDefault `yaml:"defaults"`
}

// ObservabilityConfig controls logging and audit output.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	AuditPath string `yaml:"audit_path"`
}

// Config is the root configuration object, matching the nested section
// shape of the teacher's own config: one struct per subsystem rather than
// a flat key space.
type Config struct {
	Gateway       GatewayConfig       `yaml:"gateway"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Scheduling    SchedulingConfig    `yaml:"scheduling"`
	Policy        PolicyConfig        `yaml:"policy"`
	LLM           LLMConfig           `yaml:"llm"`
	Observability ObservabilityConfig `yaml:"observability"`
	EnablePipeline bool               `yaml:"enable_pipeline"`
}

// Default returns the compiled-in configuration used when no file is
// supplied, suitable for local development against in-memory stores.
func Default() Config {
	return Config{
		Gateway:  GatewayConfig{ListenAddr: ":8080"},
		Sessions: SessionsConfig{BoundaryLockTTLMs: 5000, BoundaryAcquireTimeoutMs: 2000},
		Scheduling: SchedulingConfig{
			ClinicCacheWarmTTLSeconds: 60,
			PatientUpsertCacheSeconds: 300,
		},
		Observability:  ObservabilityConfig{LogLevel: "info"},
		EnablePipeline: true,
	}
}

// Load reads path (if non-empty), expanding ${VAR} references against the
// process environment, unmarshals it over the compiled-in Default, and
// then applies the recognized environment variable overrides. A blank
// path returns Default with overrides applied, for zero-config local runs.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the fixed set of recognized environment
// variable overrides, matching the ambient stack's named override list:
// TIER_<NAME>_MODEL is read directly by llmtier.Registry.Resolve, so it is
// intentionally not duplicated here.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOUNDARY_LOCK_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.BoundaryLockTTLMs = n
		}
	}
	if v := os.Getenv("PATIENT_UPSERT_CACHE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.PatientUpsertCacheSeconds = n
		}
	}
	if v := os.Getenv("CLINIC_CACHE_WARM_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduling.ClinicCacheWarmTTLSeconds = n
		}
	}
	if v := os.Getenv("ENABLE_PIPELINE"); v != "" {
		cfg.EnablePipeline = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
}

// Validate checks invariants the loaded config must satisfy before the
// server starts: a malformed config should fail fast at boot, not during
// the first request.
func (c Config) Validate() error {
	if c.Gateway.ListenAddr == "" {
		return fmt.Errorf("config: gateway.listen_addr is required")
	}
	if c.Sessions.BoundaryLockTTLMs <= 0 {
		return fmt.Errorf("config: sessions.boundary_lock_ttl_ms must be positive")
	}
	return nil
}

// BoundaryLockTTL returns the configured lock TTL as a time.Duration.
func (c Config) BoundaryLockTTL() time.Duration {
	return time.Duration(c.Sessions.BoundaryLockTTLMs) * time.Millisecond
}

// BoundaryAcquireTimeout returns the configured lock acquire timeout as a
// time.Duration, defaulting to 2 seconds when unset.
func (c Config) BoundaryAcquireTimeout() time.Duration {
	if c.Sessions.BoundaryAcquireTimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Sessions.BoundaryAcquireTimeoutMs) * time.Millisecond
}
