package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/router"
	"github.com/dsmolchanov/clinic-scheduler/internal/sessionmgr"
	"github.com/dsmolchanov/clinic-scheduler/internal/tools/policy"
	"github.com/dsmolchanov/clinic-scheduler/internal/toolexec"
)

type fakeClinicStore struct{ profile ClinicProfile }

func (f fakeClinicStore) Clinic(ctx context.Context, clinicID string) (ClinicProfile, error) {
	return f.profile, nil
}

type fakePatientStore struct{ profile PatientProfile }

func (f fakePatientStore) Patient(ctx context.Context, clinicID, phone string) (PatientProfile, error) {
	return f.profile, nil
}

type fakeHistoryStore struct{}

func (fakeHistoryStore) History(ctx context.Context, sessionID string, tokenBudget int) ([]HistoryMessage, error) {
	return nil, nil
}

type fakeProvider struct{ content string }

func (f fakeProvider) Name() string { return "fake" }
func (f fakeProvider) Generate(ctx context.Context, req llmtier.GenerateRequest) (*llmtier.GenerateResponse, error) {
	return &llmtier.GenerateResponse{Content: f.content}, nil
}

type fakeProviderResolver struct{ provider llmtier.Provider }

func (f fakeProviderResolver) Provider(name string) (llmtier.Provider, bool) { return f.provider, true }

type fakeToolCatalog struct{ executor *toolexec.Executor }

func (f fakeToolCatalog) Schemas(clinicID string) []llmtier.ToolSchema { return nil }
func (f fakeToolCatalog) Executor(clinicID string) *toolexec.Executor  { return f.executor }

func testPipeline(t *testing.T, clinic ClinicProfile, llmContent string) *Pipeline {
	t.Helper()
	sessionStore := sessionmgr.NewMemoryStore()
	locker := sessionmgr.NewMemoryLocker(sessionmgr.DefaultLockConfig())
	constraintStore := constraints.NewMemoryStore()
	manager := sessionmgr.NewManager(sessionStore, locker, constraintClearerAdapter{constraintStore}, sessionmgr.SummaryTriggerFunc(func(ctx context.Context, sessionID string) error { return nil }))

	cache := NewClinicCache(fakeClinicStore{profile: clinic}, 0)
	hydrator := NewHydrator(cache, fakePatientStore{profile: PatientProfile{PatientID: "patient-1"}}, sessionStore, fakeHistoryStore{}, constraintStore)

	registry := llmtier.NewRegistry(nil, nil, map[string]llmtier.Capability{
		"fake/model-1": {Provider: "fake", Model: "model-1", SupportsToolCalling: true},
	}, map[llmtier.Tier]llmtier.Capability{
		llmtier.TierToolCalling: {Provider: "fake", Model: "model-1"},
	})

	executor := toolexec.NewExecutor(toolexec.Config{Resolver: policy.NewResolver()})
	return NewPipeline(manager, hydrator, registry, fakeProviderResolver{provider: fakeProvider{content: llmContent}}, fakeToolCatalog{executor: executor})
}

type constraintClearerAdapter struct{ store *constraints.MemoryStore }

func (c constraintClearerAdapter) Clear(ctx context.Context, sessionID string) error {
	return c.store.Clear(ctx, sessionID)
}

func TestHandleFastPathPriceLane(t *testing.T) {
	clinic := ClinicProfile{
		ClinicID:  "clinic-1",
		Timezone:  "UTC",
		LocaleTag: "en-US",
		Services: map[string]router.Service{
			"svc-clean": {ID: "svc-clean", Name: "Teeth cleaning", PriceCents: 500000, Currency: "USD"},
		},
		AliasMap: map[string]string{"teeth cleaning": "svc-clean"},
	}
	p := testPipeline(t, clinic, "should not be used")

	tc, err := p.Handle(context.Background(), "clinic-1", "+10000000000", "how much is teeth cleaning", "en", nil)
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !tc.Done || tc.Reply == "" {
		t.Fatalf("expected a fast-path reply, got %+v", tc)
	}
}

func TestHandleFallsThroughToGeneration(t *testing.T) {
	clinic := ClinicProfile{ClinicID: "clinic-1", Timezone: "UTC", LocaleTag: "en-US", Services: map[string]router.Service{}}
	p := testPipeline(t, clinic, "Sure, let's find you a slot.")

	tc, err := p.Handle(context.Background(), "clinic-1", "+10000000001", "tell me a joke", "en", nil)
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if tc.Reply != "Sure, let's find you a slot." {
		t.Fatalf("expected generated reply, got %q", tc.Reply)
	}
}

func TestHandleEscalationShortCircuits(t *testing.T) {
	clinic := ClinicProfile{ClinicID: "clinic-1", Timezone: "UTC", LocaleTag: "en-US"}
	p := testPipeline(t, clinic, "unused")

	tc, err := p.Handle(context.Background(), "clinic-1", "+10000000002", "hello", "en", stubEscalationChecker{})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !tc.Escalated || tc.Reply != "we're still working on finding you a slot" {
		t.Fatalf("unexpected result: %+v", tc)
	}
}

type stubEscalationChecker struct{}

func (stubEscalationChecker) PendingMessage(ctx context.Context, clinicID, patientID string) (string, bool) {
	return "we're still working on finding you a slot", true
}

func TestHandleExtractsConstraintAndEchoesState(t *testing.T) {
	clinic := ClinicProfile{ClinicID: "clinic-1", Timezone: "UTC", LocaleTag: "en-US", Services: map[string]router.Service{}}
	p := testPipeline(t, clinic, "Noted.")

	tc, err := p.Handle(context.Background(), "clinic-1", "+10000000003", "forget ivanova", "en", nil)
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !tc.ConstraintsChanged {
		t.Fatalf("expected constraints changed, got %+v", tc)
	}
	if !strings.HasPrefix(tc.Reply, "Got it: ") {
		t.Fatalf("expected a state echo before the reply, got %q", tc.Reply)
	}
}
