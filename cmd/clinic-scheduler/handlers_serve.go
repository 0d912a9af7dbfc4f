package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/audit"
	"github.com/dsmolchanov/clinic-scheduler/internal/config"
	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/pipeline"
	"github.com/dsmolchanov/clinic-scheduler/internal/ratelimit"
	"github.com/dsmolchanov/clinic-scheduler/internal/router"
	"github.com/dsmolchanov/clinic-scheduler/internal/rules"
	"github.com/dsmolchanov/clinic-scheduler/internal/scheduling"
	"github.com/dsmolchanov/clinic-scheduler/internal/sessionmgr"
	"github.com/dsmolchanov/clinic-scheduler/internal/summarizer"
	"github.com/dsmolchanov/clinic-scheduler/internal/webhook"
)

// runServe wires the full dependency graph from configuration and serves
// webhook traffic until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting clinic scheduler", "version", version, "commit", commit, "config", configPath, "debug", debug)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	auditLogger, err := audit.NewLogger(auditConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer auditLogger.Close()

	handler, err := buildWebhookHandler(cfg, auditLogger)
	if err != nil {
		return fmt.Errorf("failed to wire webhook handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/webhook/evolution", webhook.HTTPHandler(handler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.Gateway.ListenAddr,
		Handler: mux,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("webhook server listening", "addr", cfg.Gateway.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	slog.Info("shutdown signal received, initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("clinic scheduler stopped gracefully")
	return nil
}

// auditConfigFrom adapts the service config's observability section into
// an audit.Config, defaulting to stdout JSON logging when no audit path is
// configured.
func auditConfigFrom(cfg config.Config) audit.Config {
	ac := audit.DefaultConfig()
	ac.Enabled = true
	if cfg.Observability.AuditPath != "" {
		ac.Output = "file:" + cfg.Observability.AuditPath
	}
	return ac
}

// buildWebhookHandler constructs the complete pipeline dependency graph
// against in-memory, single-node-viable stores and wires whichever LLM
// providers have a configured API key.
func buildWebhookHandler(cfg config.Config, auditLogger *audit.Logger) (*webhook.Handler, error) {
	constraintsStore := constraints.NewMemoryStore()

	sessionStore := sessionmgr.NewMemoryStore()
	locker := sessionmgr.NewMemoryLocker(sessionmgr.LockConfig{
		TTL:            cfg.BoundaryLockTTL(),
		AcquireTimeout: cfg.BoundaryAcquireTimeout(),
	})

	conversations := pipeline.NewMemoryConversationStore()

	registry, providerSet, err := buildLLMTier(cfg)
	if err != nil {
		return nil, err
	}

	summaryTrigger := summarizer.NewTrigger(conversations, sessionStore, registry, providerSet)
	sessions := sessionmgr.NewManager(sessionStore, locker, constraintsStore, summaryTrigger)

	clinicStore := pipeline.NewMemoryClinicStore(defaultClinicProfiles()...)
	clinicCache := pipeline.NewClinicCache(clinicStore, time.Duration(cfg.Scheduling.ClinicCacheWarmTTLSeconds)*time.Second)
	patientStore := pipeline.NewMemoryPatientStore()

	hydrator := pipeline.NewHydrator(clinicCache, patientStore, sessionStore, conversations, constraintsStore)

	holds := scheduling.NewMemoryHoldStore()
	appts := scheduling.NewMemoryAppointmentStore()
	escalations := scheduling.NewMemoryEscalationStore()

	directory := scheduling.NewMemoryDirectory(defaultDoctorRoster(), defaultRooms(), appts)
	settingsSource, err := buildSettingsSource(cfg)
	if err != nil {
		return nil, err
	}

	engine := scheduling.NewEngine(directory, directory, settingsSource, holds, appts, escalations)
	engine.SetAuditLogger(auditLogger)

	catalog := scheduling.NewCatalog(engine, nil)
	escalationGate := scheduling.NewEscalationGate(escalations)

	pipe := pipeline.NewPipeline(sessions, hydrator, registry, providerSet, catalog)

	sender := webhook.NewEvolutionSender(os.Getenv("EVOLUTION_API_BASE_URL"))

	return webhook.NewHandler(webhook.Config{
		Pipeline:    pipe,
		Escalations: escalationGate,
		Sender:      sender,
		DedupeTTL:   5 * time.Minute,
		RateLimit:   ratelimit.DefaultConfig(),
	}), nil
}

// buildLLMTier wires the concrete provider adapters for whichever API keys
// are configured and a Registry over the compiled-in tier defaults. At
// least one provider must be configured for the server to do anything
// useful, but construction itself does not require one: a clinic with no
// provider configured simply fails generation at request time.
func buildLLMTier(cfg config.Config) (*llmtier.Registry, *llmtier.ProviderSet, error) {
	var providers []llmtier.Provider

	if cfg.LLM.AnthropicAPIKey != "" {
		p, err := llmtier.NewAnthropicProvider(llmtier.AnthropicConfig{APIKey: cfg.LLM.AnthropicAPIKey})
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic provider: %w", err)
		}
		providers = append(providers, p)
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		p, err := llmtier.NewOpenAIProvider(llmtier.OpenAIConfig{APIKey: cfg.LLM.OpenAIAPIKey})
		if err != nil {
			return nil, nil, fmt.Errorf("openai provider: %w", err)
		}
		providers = append(providers, p)
	}

	providerSet := llmtier.NewProviderSet(providers...)
	mappings := llmtier.NewMemoryMappingSource()

	matrix, defaults := capabilityMatrix(cfg)
	registry := llmtier.NewRegistry(nil, mappings, matrix, defaults)
	return registry, providerSet, nil
}

// capabilityMatrix builds the compiled-in capability matrix and per-tier
// defaults, applying any overrides from the loaded config's llm.defaults
// section.
func capabilityMatrix(cfg config.Config) (map[string]llmtier.Capability, map[llmtier.Tier]llmtier.Capability) {
	claudeSonnet := llmtier.Capability{
		Provider: "anthropic", Model: "claude-sonnet-4-5-20250929",
		SupportsToolCalling: true, SupportsParallelTools: true, PriceBand: "mid", P95LatencyMillis: 2500,
	}
	claudeHaiku := llmtier.Capability{
		Provider: "anthropic", Model: "claude-haiku-4-5-20251001",
		SupportsToolCalling: true, SupportsParallelTools: true, PriceBand: "low", P95LatencyMillis: 900,
	}
	gpt4o := llmtier.Capability{
		Provider: "openai", Model: "gpt-4o",
		SupportsToolCalling: true, SupportsParallelTools: true, SupportsJSONMode: true, PriceBand: "mid", P95LatencyMillis: 2200,
	}
	gpt4oMini := llmtier.Capability{
		Provider: "openai", Model: "gpt-4o-mini",
		SupportsToolCalling: true, SupportsParallelTools: true, SupportsJSONMode: true, PriceBand: "low", P95LatencyMillis: 800,
	}

	matrix := map[string]llmtier.Capability{
		"anthropic/claude-sonnet-4-5-20250929": claudeSonnet,
		"anthropic/claude-haiku-4-5-20251001":  claudeHaiku,
		"openai/gpt-4o":                        gpt4o,
		"openai/gpt-4o-mini":                   gpt4oMini,
	}

	defaults := map[llmtier.Tier]llmtier.Capability{
		llmtier.TierRouting:       claudeHaiku,
		llmtier.TierToolCalling:   claudeSonnet,
		llmtier.TierReasoning:     claudeSonnet,
		llmtier.TierSummarization: gpt4oMini,
	}

	for _, d := range cfg.LLM.Defaults {
		key := d.Provider + "/" + d.Model
		if capability, ok := matrix[key]; ok {
			defaults[llmtier.Tier(d.Tier)] = capability
		}
	}

	return matrix, defaults
}

// buildSettingsSource compiles the configured rule bundle (or a permissive
// default bundle when none is configured) and seeds a MemorySettingsSource
// with it for every clinic this single-node deployment serves.
func buildSettingsSource(cfg config.Config) (*scheduling.MemorySettingsSource, error) {
	compiler := rules.NewCompiler()
	source := scheduling.NewMemorySettingsSource()

	for _, profile := range defaultClinicProfiles() {
		bundle, err := loadRuleBundle(cfg.Policy.BundlePath, profile.ClinicID)
		if err != nil {
			return nil, fmt.Errorf("load rule bundle for %s: %w", profile.ClinicID, err)
		}
		policy, err := compiler.Compile(bundle)
		if err != nil {
			return nil, fmt.Errorf("compile default rule bundle for %s: %w", profile.ClinicID, err)
		}

		source.Put(scheduling.ClinicScheduleSettings{
			ClinicID:        profile.ClinicID,
			Timezone:        time.UTC,
			GridMinutes:     15,
			OpenHour:        9,
			CloseHour:       18,
			ServiceDuration: defaultServiceDurations(),
			Weights:         scheduling.DefaultPreferenceWeights(),
		}, policy)
	}
	return source, nil
}

// loadRuleBundle reads a rule bundle from path if set, pinning its
// clinic_id to clinicID (a bundle file authored for one clinic is not
// expected to already carry the right id for every clinic this process
// serves). Bundles are JSON, matching the json struct tags rules.RuleBundle
// validates against via its JSON schema. A blank path yields a permissive,
// rule-free default bundle.
func loadRuleBundle(path, clinicID string) (rules.RuleBundle, error) {
	if path == "" {
		return rules.RuleBundle{
			SchemaVersion: "1",
			BundleID:      "default-" + clinicID,
			ClinicID:      clinicID,
			Rules:         []rules.Rule{},
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules.RuleBundle{}, fmt.Errorf("read %s: %w", path, err)
	}
	var bundle rules.RuleBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return rules.RuleBundle{}, fmt.Errorf("parse %s: %w", path, err)
	}
	bundle.ClinicID = clinicID
	if bundle.Rules == nil {
		bundle.Rules = []rules.Rule{}
	}
	return bundle, nil
}

// defaultClinicProfiles seeds the single demo clinic this deployment
// serves out of the box. A production deployment replaces this with a
// relational ClinicStore populated from the clinic directory.
func defaultClinicProfiles() []pipeline.ClinicProfile {
	return []pipeline.ClinicProfile{
		{
			ClinicID:      webhook.DefaultClinicID,
			Timezone:      "UTC",
			BusinessHours: "Mon-Fri 09:00-18:00",
			Services: map[string]router.Service{
				"cleaning": {ID: "cleaning", Name: "Dental cleaning", PriceCents: 8000, Currency: "USD", DurationMin: 30},
				"checkup":  {ID: "checkup", Name: "General checkup", PriceCents: 6000, Currency: "USD", DurationMin: 20},
			},
			Doctors:   []string{"doctor-1", "doctor-2"},
			LocaleTag: "en",
		},
	}
}

func defaultServiceDurations() map[string]time.Duration {
	return map[string]time.Duration{
		"cleaning": 30 * time.Minute,
		"checkup":  20 * time.Minute,
	}
}

func defaultDoctorRoster() []scheduling.DoctorRoster {
	return []scheduling.DoctorRoster{
		{DoctorID: "doctor-1", ServiceIDs: []string{"cleaning", "checkup"}, PreferredRoom: "room-1"},
		{DoctorID: "doctor-2", ServiceIDs: []string{"checkup"}, PreferredRoom: "room-2"},
	}
}

func defaultRooms() []string {
	return []string{"room-1", "room-2"}
}
