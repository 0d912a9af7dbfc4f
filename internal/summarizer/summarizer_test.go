package summarizer

import (
	"context"
	"testing"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/compaction"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/sessionmgr"
)

type fakeHistoryStore struct{ messages []compaction.Message }

func (f fakeHistoryStore) FullHistory(ctx context.Context, sessionID string) ([]compaction.Message, error) {
	return f.messages, nil
}

type fakeProvider struct{ content string }

func (f fakeProvider) Name() string { return "fake" }
func (f fakeProvider) Generate(ctx context.Context, req llmtier.GenerateRequest) (*llmtier.GenerateResponse, error) {
	return &llmtier.GenerateResponse{Content: f.content}, nil
}

type fakeProviderResolver struct{ provider llmtier.Provider }

func (f fakeProviderResolver) Provider(name string) (llmtier.Provider, bool) { return f.provider, true }

func testRegistry() *llmtier.Registry {
	return llmtier.NewRegistry(nil, nil, map[string]llmtier.Capability{
		"fake/model-1": {Provider: "fake", Model: "model-1"},
	}, map[llmtier.Tier]llmtier.Capability{
		llmtier.TierSummarization: {Provider: "fake", Model: "model-1"},
	})
}

func TestTriggerWritesSummaryOnSuccess(t *testing.T) {
	store := sessionmgr.NewMemoryStore()
	session := &sessionmgr.Session{ID: "sess-1", Phone: "+1000", ClinicID: "clinic-1"}
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	history := fakeHistoryStore{messages: []compaction.Message{
		{Role: "user", Content: "I need a cleaning next week", Timestamp: time.Now().Unix()},
		{Role: "assistant", Content: "Booked you for Tuesday at 10am", Timestamp: time.Now().Unix()},
	}}

	trigger := NewTrigger(history, store, testRegistry(), fakeProviderResolver{provider: fakeProvider{content: "Patient booked a cleaning for Tuesday 10am."}})

	if err := trigger.Trigger(context.Background(), "sess-1"); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	got, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.SummaryStatus != sessionmgr.SummaryReady {
		t.Fatalf("expected ready status, got %v", got.SummaryStatus)
	}
	if got.Summary == "" {
		t.Fatal("expected a non-empty summary")
	}
}

func TestTriggerMarksFailedWhenNoProvider(t *testing.T) {
	store := sessionmgr.NewMemoryStore()
	session := &sessionmgr.Session{ID: "sess-2", Phone: "+1001", ClinicID: "clinic-1"}
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	history := fakeHistoryStore{messages: []compaction.Message{{Role: "user", Content: "hi"}}}
	trigger := NewTrigger(history, store, testRegistry(), missingProviderResolver{})

	if err := trigger.Trigger(context.Background(), "sess-2"); err == nil {
		t.Fatal("expected an error when no provider is registered")
	}

	got, err := store.Get(context.Background(), "sess-2")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.SummaryStatus != sessionmgr.SummaryFailed {
		t.Fatalf("expected failed status, got %v", got.SummaryStatus)
	}
}

type missingProviderResolver struct{}

func (missingProviderResolver) Provider(name string) (llmtier.Provider, bool) { return nil, false }

func TestTriggerHandlesEmptyHistory(t *testing.T) {
	store := sessionmgr.NewMemoryStore()
	session := &sessionmgr.Session{ID: "sess-3", Phone: "+1002", ClinicID: "clinic-1"}
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	trigger := NewTrigger(fakeHistoryStore{}, store, testRegistry(), fakeProviderResolver{provider: fakeProvider{content: "unused"}})
	if err := trigger.Trigger(context.Background(), "sess-3"); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	got, _ := store.Get(context.Background(), "sess-3")
	if got.Summary != compaction.DefaultSummaryFallback {
		t.Fatalf("expected default fallback summary, got %q", got.Summary)
	}
}
