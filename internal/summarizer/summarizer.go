// Package summarizer compresses an archived session's message history
// into a short textual record, fired as a background task by
// internal/sessionmgr on archival and never on the foreground reply path.
package summarizer

import (
	"context"
	"fmt"

	"github.com/dsmolchanov/clinic-scheduler/internal/compaction"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/sessionmgr"
)

// HistoryStore supplies the full message history for a closed session.
// Unlike the pipeline's bounded, token-budget history fetch, the
// summarizer wants everything the session ever said.
type HistoryStore interface {
	FullHistory(ctx context.Context, sessionID string) ([]compaction.Message, error)
}

// ProviderResolver resolves the summarization-tier provider for a clinic.
type ProviderResolver interface {
	Provider(name string) (llmtier.Provider, bool)
}

// Trigger implements sessionmgr.SummaryTrigger: on archival it loads the
// session's full history, compresses it with a chunked-then-merged
// summarization pass, and writes the result back onto the session row.
type Trigger struct {
	history   HistoryStore
	sessions  sessionmgr.Store
	registry  *llmtier.Registry
	providers ProviderResolver
	config    *compaction.SummarizationConfig
}

// NewTrigger wires a Trigger from its collaborators.
func NewTrigger(history HistoryStore, sessions sessionmgr.Store, registry *llmtier.Registry, providers ProviderResolver) *Trigger {
	return &Trigger{
		history:   history,
		sessions:  sessions,
		registry:  registry,
		providers: providers,
		config:    compaction.DefaultSummarizationConfig(),
	}
}

// Trigger satisfies sessionmgr.SummaryTrigger.
func (t *Trigger) Trigger(ctx context.Context, sessionID string) error {
	messages, err := t.history.FullHistory(ctx, sessionID)
	if err != nil {
		_ = t.sessions.SetSummary(ctx, sessionID, "", sessionmgr.SummaryFailed)
		return fmt.Errorf("summarizer: loading history: %w", err)
	}

	ptrs := make([]*compaction.Message, len(messages))
	for i := range messages {
		ptrs[i] = &messages[i]
	}

	resolution := t.registry.Resolve("", llmtier.TierSummarization, sessionID)
	provider, ok := t.providers.Provider(resolution.Provider)
	if !ok {
		_ = t.sessions.SetSummary(ctx, sessionID, "", sessionmgr.SummaryFailed)
		return fmt.Errorf("summarizer: no provider registered for %q", resolution.Provider)
	}

	cfg := *t.config
	cfg.Model = resolution.Model
	adapter := &providerSummarizer{provider: provider, model: resolution.Model}

	summary, err := compaction.SummarizeInStages(ctx, ptrs, adapter, &cfg)
	if err != nil {
		_ = t.sessions.SetSummary(ctx, sessionID, "", sessionmgr.SummaryFailed)
		return fmt.Errorf("summarizer: generating summary: %w", err)
	}

	return t.sessions.SetSummary(ctx, sessionID, summary, sessionmgr.SummaryReady)
}

// providerSummarizer adapts an llmtier.Provider to compaction.Summarizer.
type providerSummarizer struct {
	provider llmtier.Provider
	model    string
}

const systemPrompt = "Summarize this patient conversation in a few sentences: note the desired service, any scheduling outcome, and anything the clinic should remember next time."

func (p *providerSummarizer) GenerateSummary(ctx context.Context, messages []*compaction.Message, config *compaction.SummarizationConfig) (string, error) {
	transcript := compaction.FormatMessagesForSummary(messages)
	instructions := systemPrompt
	if config != nil && config.CustomInstructions != "" {
		instructions = config.CustomInstructions
	}
	if config != nil && config.PreviousSummary != "" {
		transcript = "Previous summary:\n" + config.PreviousSummary + "\n\n" + transcript
	}

	resp, err := p.provider.Generate(ctx, llmtier.GenerateRequest{
		Model:  p.model,
		System: instructions,
		Messages: []llmtier.Message{
			{Role: "user", Content: transcript},
		},
		MaxTokens: 300,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
