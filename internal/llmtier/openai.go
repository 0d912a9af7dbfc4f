package llmtier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dsmolchanov/clinic-scheduler/internal/backoff"
)

// OpenAIProvider adapts OpenAI's chat completions API to the Provider
// interface, in non-streaming mode: the orchestrator needs the whole
// tool-call set before it can act.
type OpenAIProvider struct {
	client      *openai.Client
	maxRetries  int
	retryPolicy backoff.BackoffPolicy
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
}

// NewOpenAIProvider builds an OpenAIProvider. APIKey is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llmtier: openai API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		maxRetries:  cfg.MaxRetries,
		retryPolicy: backoff.DefaultPolicy(),
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Generate sends one synchronous chat completion request, retrying
// transient failures with jittered backoff.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}

	var resp openai.ChatCompletionResponse
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries+1; attempt++ {
		resp, lastErr = p.client.CreateChatCompletion(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if attempt > p.maxRetries || !isRetryableOpenAIError(lastErr) {
			return nil, fmt.Errorf("llmtier: openai generate: %w", lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff.ComputeBackoff(p.retryPolicy, attempt)):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("llmtier: openai generate: %w", lastErr)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llmtier: openai generate: empty choices")
	}

	return toOpenAIGenerateResponse(resp), nil
}

func (p *OpenAIProvider) buildRequest(req GenerateRequest) (openai.ChatCompletionRequest, error) {
	messages, err := convertMessagesToOpenAI(req.Messages, req.System)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("llmtier: openai message conversion: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsToOpenAI(req.Tools)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		chatReq.Tools = tools
	}
	return chatReq, nil
}

func convertMessagesToOpenAI(messages []Message, system string) ([]openai.ChatCompletionMessage, error) {
	var result []openai.ChatCompletionMessage
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case "assistant":
			out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			result = append(result, out)
		case "tool":
			for _, tr := range msg.ToolResults {
				content := tr.Content
				if tr.IsError && content == "" {
					content = "tool execution failed"
				}
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: tr.ToolCallID,
				})
			}
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}
	return result, nil
}

func convertToolsToOpenAI(tools []ToolSchema) ([]openai.Tool, error) {
	var result []openai.Tool
	for _, tool := range tools {
		var params map[string]interface{}
		if len(tool.Parameters) > 0 {
			if err := json.Unmarshal(tool.Parameters, &params); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
			}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return result, nil
}

func toOpenAIGenerateResponse(resp openai.ChatCompletionResponse) *GenerateResponse {
	choice := resp.Choices[0]
	out := &GenerateResponse{
		Content:      choice.Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "connection reset")
}
