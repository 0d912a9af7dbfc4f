package webhook

import (
	"context"
	"testing"

	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/pipeline"
	"github.com/dsmolchanov/clinic-scheduler/internal/ratelimit"
	"github.com/dsmolchanov/clinic-scheduler/internal/router"
	"github.com/dsmolchanov/clinic-scheduler/internal/sessionmgr"
	"github.com/dsmolchanov/clinic-scheduler/internal/tools/policy"
	"github.com/dsmolchanov/clinic-scheduler/internal/toolexec"
)

type fakeClinicStore struct{ profile pipeline.ClinicProfile }

func (f fakeClinicStore) Clinic(ctx context.Context, clinicID string) (pipeline.ClinicProfile, error) {
	return f.profile, nil
}

type fakePatientStore struct{}

func (fakePatientStore) Patient(ctx context.Context, clinicID, phone string) (pipeline.PatientProfile, error) {
	return pipeline.PatientProfile{PatientID: "patient-1"}, nil
}

type fakeHistoryStore struct{}

func (fakeHistoryStore) History(ctx context.Context, sessionID string, tokenBudget int) ([]pipeline.HistoryMessage, error) {
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

type constraintClearerAdapter struct{ store *constraints.MemoryStore }

func (c constraintClearerAdapter) Clear(ctx context.Context, sessionID string) error {
	return c.store.Clear(ctx, sessionID)
}

func testHandler(t *testing.T, sender Sender) *Handler {
	t.Helper()
	sessionStore := sessionmgr.NewMemoryStore()
	locker := sessionmgr.NewMemoryLocker(sessionmgr.DefaultLockConfig())
	constraintStore := constraints.NewMemoryStore()
	manager := sessionmgr.NewManager(sessionStore, locker, constraintClearerAdapter{constraintStore},
		sessionmgr.SummaryTriggerFunc(func(ctx context.Context, sessionID string) error { return nil }))

	clinic := pipeline.ClinicProfile{ClinicID: "3e411ecb-3411-4add-91e2-8fa897310cb0", Timezone: "UTC", LocaleTag: "en-US", Services: map[string]router.Service{}}
	cache := pipeline.NewClinicCache(fakeClinicStore{profile: clinic}, 0)
	hydrator := pipeline.NewHydrator(cache, fakePatientStore{}, sessionStore, fakeHistoryStore{}, constraintStore)

	registry := llmtier.NewRegistry(nil, nil, map[string]llmtier.Capability{
		"fake/model-1": {Provider: "fake", Model: "model-1", SupportsToolCalling: true},
	}, map[llmtier.Tier]llmtier.Capability{
		llmtier.TierToolCalling: {Provider: "fake", Model: "model-1"},
	})
	executor := toolexec.NewExecutor(toolexec.Config{Resolver: policy.NewResolver()})
	pl := pipeline.NewPipeline(manager, hydrator, registry, fakeProviderResolver{provider: fakeProvider{content: "Sure, one moment."}}, fakeToolCatalog{executor: executor})

	return NewHandler(Config{Pipeline: pl, Sender: sender, RateLimit: ratelimit.Config{RequestsPerSecond: 100, BurstSize: 100, Enabled: true}})
}

type recordingSender struct{ sent []string }

func (r *recordingSender) Send(ctx context.Context, instanceName, toNumber, text string) error {
	r.sent = append(r.sent, text)
	return nil
}

func evolutionBody(instance, jid, text string, fromMe bool) []byte {
	return []byte(`{"instanceName":"` + instance + `","message":{"key":{"remoteJid":"` + jid + `","fromMe":` + boolStr(fromMe) + `},"message":{"conversation":"` + text + `"}}}`)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestHandleMessageUpsertProcessesMessage(t *testing.T) {
	sender := &recordingSender{}
	h := testHandler(t, sender)

	resp := h.HandleMessageUpsert(context.Background(), evolutionBody("clinic-3e411ecb-3411-4add-91e2-8fa897310cb0-1700000000", "15550001@s.whatsapp.net", "tell me a joke", false))
	if !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "Sure, one moment." {
		t.Fatalf("expected reply to be sent, got %+v", sender.sent)
	}
}

func TestHandleMessageUpsertIgnoresOwnMessage(t *testing.T) {
	h := testHandler(t, &recordingSender{})
	resp := h.HandleMessageUpsert(context.Background(), evolutionBody("clinic-3e411ecb-3411-4add-91e2-8fa897310cb0-1700000000", "15550001@s.whatsapp.net", "hi", true))
	if !resp.OK || resp.Message == "" {
		t.Fatalf("expected ignored response, got %+v", resp)
	}
}

func TestHandleMessageUpsertDeduplicates(t *testing.T) {
	sender := &recordingSender{}
	h := testHandler(t, sender)
	body := evolutionBody("clinic-3e411ecb-3411-4add-91e2-8fa897310cb0-1700000000", "15550002@s.whatsapp.net", "hello there", false)

	h.HandleMessageUpsert(context.Background(), body)
	h.HandleMessageUpsert(context.Background(), body)

	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(sender.sent))
	}
}

func TestHandleMessageUpsertRateLimitsPerPhone(t *testing.T) {
	sender := &recordingSender{}
	h := testHandler(t, sender)
	h.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: 0.0001, BurstSize: 1, Enabled: true})

	from := "15550003@s.whatsapp.net"
	first := h.HandleMessageUpsert(context.Background(), evolutionBody("clinic-3e411ecb-3411-4add-91e2-8fa897310cb0-1700000000", from, "message one", false))
	second := h.HandleMessageUpsert(context.Background(), evolutionBody("clinic-3e411ecb-3411-4add-91e2-8fa897310cb0-1700000000", from, "message two", false))

	if !first.OK {
		t.Fatalf("expected first message to be allowed: %+v", first)
	}
	if second.OK {
		t.Fatalf("expected second message to be rate limited: %+v", second)
	}
}

func TestClinicIDFromInstance(t *testing.T) {
	got := clinicIDFromInstance("clinic-3e411ecb-3411-4add-91e2-8fa897310cb0-1700000000")
	want := "3e411ecb-3411-4add-91e2-8fa897310cb0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestClinicIDFromInstanceFallsBackToDefault(t *testing.T) {
	if got := clinicIDFromInstance("not-an-instance"); got != defaultClinicID {
		t.Fatalf("got %q, want default %q", got, defaultClinicID)
	}
}

func TestDetectLanguageCyrillic(t *testing.T) {
	if got := detectLanguage("когда можно записаться"); got != "ru" {
		t.Fatalf("got %q, want ru", got)
	}
	if got := detectLanguage("when can I book"); got != "en" {
		t.Fatalf("got %q, want en", got)
	}
}
