// Package llmtier resolves semantic model tiers to concrete provider/model
// pairs and runs the bounded LLM tool-calling loop used by the orchestrator.
package llmtier

import (
	"context"
	"encoding/json"
	"errors"
)

// Tier is a semantic model category, decoupled from any provider's naming.
type Tier string

const (
	TierRouting       Tier = "routing"
	TierToolCalling   Tier = "tool_calling"
	TierReasoning     Tier = "reasoning"
	TierSummarization Tier = "summarization"
	TierMultimodal    Tier = "multimodal"
	TierVoice         Tier = "voice"
)

// ErrUnknownModel describes a resolved model id with no capability matrix
// entry. Registry.Resolve does not return it: an unknown model falls back
// to the tier's compiled-in default instead.
var ErrUnknownModel = errors.New("llmtier: no capability entry for resolved model")

// Capability describes what a concrete provider/model pair supports.
type Capability struct {
	Provider              string
	Model                 string
	SupportsToolCalling   bool
	SupportsParallelTools bool
	SupportsJSONMode      bool
	PriceBand             string // "low" | "mid" | "high"
	P95LatencyMillis      int
}

// Message is a provider-agnostic chat turn.
type Message struct {
	Role        string       // "user" | "assistant" | "tool"
	Content     string
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is a normalized tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	// ProviderMetadata carries opaque per-provider state (e.g. a thought
	// signature) that must be echoed back on the next turn for providers
	// that require it.
	ProviderMetadata map[string]any
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolSchema describes a tool available to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// GenerateRequest is a single turn request to a provider adapter.
type GenerateRequest struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSchema
	MaxTokens int
}

// GenerateResponse is a single turn response from a provider adapter.
type GenerateResponse struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// Provider adapts one external LLM backend to the normalized shape used by
// the orchestrator loop. The adapters in this package are Anthropic and
// OpenAI; each builds its own request parameters, and neither reads or sets
// ToolCall.ProviderMetadata.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
