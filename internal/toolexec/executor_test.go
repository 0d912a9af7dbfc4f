package toolexec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/tools/policy"
)

func argsJSON(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return raw
}

func baseConfig() Config {
	return Config{
		Specs: map[string]Spec{
			"check_availability": {
				Name:            "check_availability",
				RequiredArgs:    []string{"doctor"},
				DoctorArgField:  "doctor",
				ServiceArgField: "service",
			},
			"hold_slot": {
				Name:         "hold_slot",
				RequiredArgs: []string{"slot_id"},
				Dependencies: []string{"check_availability"},
			},
		},
		Handlers: map[string]Handler{
			"check_availability": func(ctx context.Context, args map[string]any) (Result, error) {
				return Result{Content: "available"}, nil
			},
			"hold_slot": func(ctx context.Context, args map[string]any) (Result, error) {
				return Result{Content: "held"}, nil
			},
		},
	}
}

func TestRunToolDispatchesSuccessfully(t *testing.T) {
	e := NewExecutor(baseConfig())
	turn := e.NewTurn("session-1")

	res := turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "check_availability",
		Arguments: argsJSON(t, map[string]any{"doctor": "Dr. Ivanova"}),
	})
	if res.IsError || res.Content != "available" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunToolRejectsMissingArgs(t *testing.T) {
	e := NewExecutor(baseConfig())
	turn := e.NewTurn("session-1")

	res := turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "check_availability",
		Arguments: argsJSON(t, map[string]any{}),
	})
	if !res.IsError {
		t.Fatalf("expected rejection, got %+v", res)
	}
	if !turn.HallucinationBlocked() {
		t.Fatalf("expected hallucinationBlocked to be set")
	}
}

func TestRunToolEnforcesDependency(t *testing.T) {
	e := NewExecutor(baseConfig())
	turn := e.NewTurn("session-1")

	res := turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "hold_slot",
		Arguments: argsJSON(t, map[string]any{"slot_id": "slot-1"}),
	})
	if !res.IsError || Rejection(res.Content) != RejectDependencyUnmet {
		t.Fatalf("expected dependency rejection, got %+v", res)
	}

	turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "check_availability",
		Arguments: argsJSON(t, map[string]any{"doctor": "Dr. Ivanova"}),
	})
	res = turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "hold_slot",
		Arguments: argsJSON(t, map[string]any{"slot_id": "slot-1"}),
	})
	if res.IsError {
		t.Fatalf("expected hold_slot to succeed after dependency satisfied, got %+v", res)
	}
}

func TestRunToolEnforcesCallBudget(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxCallsPerTurn = 1
	e := NewExecutor(cfg)
	turn := e.NewTurn("session-1")

	turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "check_availability",
		Arguments: argsJSON(t, map[string]any{"doctor": "Dr. Ivanova"}),
	})
	res := turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "check_availability",
		Arguments: argsJSON(t, map[string]any{"doctor": "Dr. Ivanova"}),
	})
	if !res.IsError || Rejection(res.Content) != RejectBudgetExhausted {
		t.Fatalf("expected budget exhaustion, got %+v", res)
	}
}

func TestRunToolRejectsUnauthorizedTool(t *testing.T) {
	cfg := baseConfig()
	resolver := policy.NewResolver()
	resolver.AddGroup("group:scheduling", []string{"hold_slot"})
	cfg.Resolver = resolver
	cfg.ToolPolicy = &policy.Policy{Allow: []string{"group:scheduling"}}
	e := NewExecutor(cfg)
	turn := e.NewTurn("session-1")

	res := turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "check_availability",
		Arguments: argsJSON(t, map[string]any{"doctor": "Dr. Ivanova"}),
	})
	if !res.IsError || Rejection(res.Content) != RejectNotAuthorized {
		t.Fatalf("expected not-authorized rejection, got %+v", res)
	}
}

func TestRunToolEnforcesConstraintBlock(t *testing.T) {
	cfg := baseConfig()
	store := constraints.NewMemoryStore()
	store.Set(context.Background(), &constraints.Block{
		SessionID:       "session-1",
		ExcludedDoctors: []string{"Ivanova"},
	}, time.Hour)
	cfg.Constraints = store
	e := NewExecutor(cfg)
	turn := e.NewTurn("session-1")

	res := turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "check_availability",
		Arguments: argsJSON(t, map[string]any{"doctor": "Ivanova"}),
	})
	if !res.IsError || Rejection(res.Content) != RejectExcludedDoctor {
		t.Fatalf("expected excluded-doctor rejection, got %+v", res)
	}
}

func TestRunToolRejectsUnknownTool(t *testing.T) {
	e := NewExecutor(baseConfig())
	turn := e.NewTurn("session-1")

	res := turn.RunTool(context.Background(), llmtier.ToolCall{
		Name:      "delete_everything",
		Arguments: argsJSON(t, map[string]any{}),
	})
	if !res.IsError || Rejection(res.Content) != RejectUnknownTool {
		t.Fatalf("expected unknown-tool rejection, got %+v", res)
	}
}
