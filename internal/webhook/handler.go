package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/cache"
	"github.com/dsmolchanov/clinic-scheduler/internal/pipeline"
	"github.com/dsmolchanov/clinic-scheduler/internal/ratelimit"
	"github.com/google/uuid"
)

// Response is the shape returned to the webhook caller, matching the
// teacher's WebhookResponse: an immediate acknowledgement, never the
// eventual reply (that goes out over the outbound channel instead).
type Response struct {
	OK        bool           `json:"ok"`
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sender delivers a generated reply back to the patient over WhatsApp.
// The production implementation posts to an Evolution API instance; tests
// use a recording fake.
type Sender interface {
	Send(ctx context.Context, instanceName, toNumber, text string) error
}

// Handler ingests Evolution API webhook events: it deduplicates by
// WhatsApp message ID, throttles by sender phone number, resolves the
// clinic from the instance name, and dispatches to the pipeline.
type Handler struct {
	pipeline    *pipeline.Pipeline
	escalations pipeline.EscalationChecker
	sender      Sender
	dedupe      *cache.DedupeCache
	limiter     *ratelimit.Limiter
	clock       func() time.Time
}

// Config wires a Handler's collaborators and tuning.
type Config struct {
	Pipeline    *pipeline.Pipeline
	Escalations pipeline.EscalationChecker
	Sender      Sender
	DedupeTTL   time.Duration
	RateLimit   ratelimit.Config
}

// NewHandler builds a Handler. A zero DedupeTTL defaults to five minutes,
// long enough to absorb Evolution's occasional duplicate delivery of the
// same message-upsert event without suppressing a genuine follow-up.
func NewHandler(cfg Config) *Handler {
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	rl := cfg.RateLimit
	if rl.RequestsPerSecond <= 0 {
		rl = ratelimit.DefaultConfig()
	}
	return &Handler{
		pipeline:    cfg.Pipeline,
		escalations: cfg.Escalations,
		sender:      cfg.Sender,
		dedupe:      cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: ttl, MaxSize: 10000}),
		limiter:     ratelimit.NewLimiter(rl),
		clock:       time.Now,
	}
}

// HandleMessageUpsert processes one Evolution API message-upsert body; the
// LLM turn and outbound send happen synchronously within this call.
// HTTPHandler runs it in the background after answering 202 Accepted, so
// the webhook's own caller never awaits it, matching the fire-and-forget
// shape of the original FastAPI handler's background task.
func (h *Handler) HandleMessageUpsert(ctx context.Context, body []byte) Response {
	var payload EvolutionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Response{OK: false, Error: "invalid JSON"}
	}

	if payload.Message.Key.FromMe {
		return Response{OK: true, Message: "ignored: own message"}
	}

	text := messageText(payload.Message)
	from := senderFromEvent(payload.Message)
	if text == "" || from == "" {
		return Response{OK: true, Message: "ignored: no text or sender"}
	}

	messageID := payload.Message.Key.RemoteJID + ":" + payload.InstanceName
	dedupeKey := cache.MessageDedupeKey("whatsapp", messageID+":"+text)
	if h.dedupe.CheckAt(dedupeKey, h.clock()) {
		return Response{OK: true, Message: "ignored: duplicate"}
	}

	if !h.limiter.Allow(from) {
		return Response{OK: false, Error: "rate limited"}
	}

	clinicID := clinicIDFromInstance(payload.InstanceName)
	language := detectLanguage(text)
	requestID := uuid.NewString()

	tc, err := h.pipeline.Handle(ctx, clinicID, from, text, language, h.escalations)
	if err != nil {
		return Response{OK: false, RequestID: requestID, Error: err.Error()}
	}

	if h.sender != nil && tc.Reply != "" {
		if err := h.sender.Send(ctx, payload.InstanceName, from, tc.Reply); err != nil {
			return Response{OK: false, RequestID: requestID, Error: fmt.Sprintf("send failed: %v", err)}
		}
	}

	return Response{
		OK:        true,
		RequestID: requestID,
		Message:   "message processed",
		Data: map[string]any{
			"clinic_id": clinicID,
			"language":  language,
			"escalated": tc.Escalated,
		},
	}
}
