package llmtier

import (
	"context"
	"testing"
)

type scriptedProvider struct {
	responses []GenerateResponse
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if p.calls >= len(p.responses) {
		return &GenerateResponse{Content: "out of script"}, nil
	}
	resp := p.responses[p.calls]
	p.calls++
	return &resp, nil
}

type echoToolRunner struct{ ran []string }

func (e *echoToolRunner) RunTool(ctx context.Context, call ToolCall) ToolResult {
	e.ran = append(e.ran, call.Name)
	return ToolResult{Content: "ok"}
}

func TestOrchestratorReturnsImmediatelyWithoutToolCalls(t *testing.T) {
	provider := &scriptedProvider{responses: []GenerateResponse{{Content: "hello"}}}
	runner := &echoToolRunner{}
	o := NewOrchestrator(provider, runner)

	res, err := o.Run(context.Background(), GenerateRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Content != "hello" || res.Turns != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestOrchestratorRunsToolCallsAcrossTurns(t *testing.T) {
	provider := &scriptedProvider{
		responses: []GenerateResponse{
			{ToolCalls: []ToolCall{{ID: "1", Name: "check_availability"}}},
			{Content: "booked"},
		},
	}
	runner := &echoToolRunner{}
	o := NewOrchestrator(provider, runner)

	res, err := o.Run(context.Background(), GenerateRequest{Messages: []Message{{Role: "user", Content: "book it"}}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Content != "booked" || res.Turns != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(runner.ran) != 1 || runner.ran[0] != "check_availability" {
		t.Fatalf("expected check_availability to run, got %v", runner.ran)
	}
}

func TestOrchestratorStopsAtMaxTurns(t *testing.T) {
	infiniteToolCalls := GenerateResponse{ToolCalls: []ToolCall{{ID: "1", Name: "check_availability"}}}
	provider := &scriptedProvider{responses: []GenerateResponse{
		infiniteToolCalls, infiniteToolCalls, infiniteToolCalls, infiniteToolCalls, infiniteToolCalls,
	}}
	runner := &echoToolRunner{}
	o := NewOrchestrator(provider, runner)

	res, err := o.Run(context.Background(), GenerateRequest{Messages: []Message{{Role: "user", Content: "loop"}}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.TurnExhausted || res.Turns != MaxTurns {
		t.Fatalf("expected turn exhaustion at %d turns, got %+v", MaxTurns, res)
	}
}
