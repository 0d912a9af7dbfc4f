package llmtier

import (
	"context"
	"fmt"
)

// MaxTurns bounds the tool-calling loop. The scheduling domain never needs
// the deep iteration counts a general coding agent does: a conversation
// turn either resolves in a couple of tool round-trips or it should fall
// back to a templated reply.
const MaxTurns = 5

// ToolRunner executes one tool call and returns its result. Implementations
// live in the tool executor package; this package only drives the turn loop
// and stays ignorant of scheduling-specific argument validation.
type ToolRunner interface {
	RunTool(ctx context.Context, call ToolCall) ToolResult
}

// Orchestrator drives the LLM tool-calling loop:
//
//	Call LLM -> no tool calls? return content.
//	          -> else run each tool call through the ToolRunner,
//	             append assistant + tool messages, repeat.
//	Bounded to MaxTurns; on exhaustion the last content is returned as-is.
type Orchestrator struct {
	provider Provider
	tools    ToolRunner
	maxTurns int
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(provider Provider, tools ToolRunner) *Orchestrator {
	return &Orchestrator{provider: provider, tools: tools, maxTurns: MaxTurns}
}

// Result is the final outcome of a Run call.
type Result struct {
	Content      string
	Turns        int
	ToolsCalled  []string
	TurnExhausted bool
}

// Run drives the loop to completion or MaxTurns, whichever comes first.
func (o *Orchestrator) Run(ctx context.Context, req GenerateRequest) (*Result, error) {
	messages := append([]Message(nil), req.Messages...)
	result := &Result{}

	for turn := 1; turn <= o.maxTurns; turn++ {
		result.Turns = turn
		resp, err := o.provider.Generate(ctx, GenerateRequest{
			Model:     req.Model,
			System:    req.System,
			Messages:  messages,
			Tools:     req.Tools,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("llmtier: generate turn %d: %w", turn, err)
		}

		if len(resp.ToolCalls) == 0 {
			result.Content = resp.Content
			return result, nil
		}

		messages = append(messages, Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		toolResults := make([]ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			tr := o.tools.RunTool(ctx, call)
			tr.ToolCallID = call.ID
			toolResults = append(toolResults, tr)
			result.ToolsCalled = append(result.ToolsCalled, call.Name)
		}
		messages = append(messages, Message{Role: "tool", ToolResults: toolResults})

		result.Content = resp.Content
	}

	result.TurnExhausted = true
	return result, nil
}
