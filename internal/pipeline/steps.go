package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/router"
	"github.com/dsmolchanov/clinic-scheduler/internal/sessionmgr"
	"github.com/dsmolchanov/clinic-scheduler/internal/toolexec"
)

// ProviderResolver returns the concrete Provider for a resolved
// (provider, model) pair, letting the pipeline stay ignorant of how many
// backends are configured.
type ProviderResolver interface {
	Provider(name string) (llmtier.Provider, bool)
}

// ToolCatalog supplies the tool schemas offered to the model and the
// toolexec.Executor used to gate and dispatch calls for a clinic.
type ToolCatalog interface {
	Schemas(clinicID string) []llmtier.ToolSchema
	Executor(clinicID string) *toolexec.Executor
}

// Pipeline runs the fixed eight-step sequence for one inbound message.
type Pipeline struct {
	sessions  *sessionmgr.Manager
	hydrator  *Hydrator
	registry  *llmtier.Registry
	providers ProviderResolver
	tools     ToolCatalog
	clock     func() time.Time
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(sessions *sessionmgr.Manager, hydrator *Hydrator, registry *llmtier.Registry, providers ProviderResolver, tools ToolCatalog) *Pipeline {
	return &Pipeline{sessions: sessions, hydrator: hydrator, registry: registry, providers: providers, tools: tools, clock: time.Now}
}

// EscalationChecker reports whether a pending escalation is open for a
// patient+service and, if so, a holding message to show instead of
// resuming normal routing.
type EscalationChecker interface {
	PendingMessage(ctx context.Context, clinicID, patientID string) (string, bool)
}

// Handle runs the full pipeline for one inbound message and returns the
// reply to send back.
func (p *Pipeline) Handle(ctx context.Context, clinicID, phone, messageBody, language string, escalations EscalationChecker) (*TurnContext, error) {
	// Step 1: session management. Signals are derived from the message text
	// and the time since the caller's last turn; the manager's boundary
	// lock and reset logic then decide whether to continue or roll a new
	// session.
	tc := &TurnContext{ClinicID: clinicID, Phone: phone, MessageBody: messageBody, Language: language}

	checkResult, err := p.sessions.Check(ctx, phone, clinicID, p.detectSignals(messageBody), sessionmgr.PatientCarryover{})
	if err != nil {
		return nil, fmt.Errorf("pipeline: session check: %w", err)
	}
	tc.Session = checkResult.Session

	// Step 2: context hydration.
	hydrated, err := p.hydrator.Hydrate(ctx, clinicID, phone, messageBody, language)
	if err != nil {
		return nil, fmt.Errorf("pipeline: hydrate: %w", err)
	}
	hydrated.Session = tc.Session
	tc = hydrated

	// Step 3: escalation check. An open escalation short-circuits the rest
	// of the pipeline with a holding reply.
	if escalations != nil {
		if msg, pending := escalations.PendingMessage(ctx, clinicID, tc.Patient.PatientID); pending {
			tc.Reply = msg
			tc.Escalated = true
			tc.Done = true
			return tc, nil
		}
	}

	// Step 4: routing and fast path.
	route := router.Classify(router.ClassifyInput{
		Message:        messageBody,
		Language:       language,
		Pending:        tc.Pending,
		BoundServiceID: boundServiceID(tc.Constraints),
		Clinic:         tc.Clinic,
	})
	tc.RouteResult = &route

	if reply, handled := p.fastPath(tc, route); handled {
		tc.Reply = reply
		tc.FastPathReply = reply
		tc.Done = true
		return tc, nil
	}

	// Step 5: constraint extraction.
	p.extractConstraints(ctx, tc)

	// Step 6: preference narrowing.
	narrowing := Narrow(tc)

	// Step 7: LLM generation with tools.
	if err := p.generate(ctx, tc, narrowing); err != nil {
		return nil, fmt.Errorf("pipeline: generate: %w", err)
	}

	// Step 8: post-processing.
	p.postProcess(tc)

	return tc, nil
}

// detectSignals builds the boundary-detection signal vector for this
// message. Topic drift and hard-correction detection are out of scope for
// a single-message heuristic and are left at their zero values; only the
// explicit reset phrase is detected here. Gap is left at zero so that
// sessionmgr.Manager.Check fills it in from the active session's last
// activity.
func (p *Pipeline) detectSignals(messageBody string) sessionmgr.Signals {
	lower := strings.ToLower(messageBody)
	reset := strings.Contains(lower, "start over") || strings.Contains(lower, "начать заново")
	return sessionmgr.Signals{ExplicitResetPhrase: reset}
}

// fastPath renders a templated reply directly from clinic data for the
// FAQ/PRICE/SERVICE_INFO lanes, without touching the LLM. It returns
// handled=false to fall through to the full generation step when a lane's
// rendering fails or the lane is SCHEDULING/COMPLEX.
func (p *Pipeline) fastPath(tc *TurnContext, route router.ClassifyResult) (string, bool) {
	switch route.Lane {
	case router.LanePrice:
		if reply, err := router.RenderPrice(tc.Clinic, route.ServiceID); err == nil {
			return reply, true
		}
	case router.LaneServiceInfo:
		if route.NeedsClarify {
			return "", false
		}
		if reply, err := router.RenderServiceInfo(tc.Clinic, route.ServiceID); err == nil {
			return reply, true
		}
	case router.LaneFAQ:
		if reply, err := router.RenderFAQ(tc.MessageBody, tc.Language); err == nil {
			return reply, true
		}
	}
	return "", false
}

// extractConstraints derives a constraint Update from the message and
// folds it into the session's constraint block.
func (p *Pipeline) extractConstraints(ctx context.Context, tc *TurnContext) {
	if tc.Session == nil {
		return
	}
	tz := clinicTimezone(tc.Clinic.Timezone)
	extraction := constraints.Extract(tc.MessageBody, tc.Language, tz, p.clock())
	if extraction.Update.ClearAll || hasUpdateContent(extraction.Update) {
		block, err := p.hydrator.constraints.Update(ctx, tc.Session.ID, extraction.Update, constraints.DefaultTTL)
		if err == nil {
			tc.Constraints = block
			tc.ConstraintsChanged = true
		}
	}
}

func boundServiceID(block *constraints.Block) string {
	if block == nil {
		return ""
	}
	return block.DesiredService
}

func hasUpdateContent(u constraints.Update) bool {
	return u.DesiredService != nil || u.DesiredDoctor != nil ||
		len(u.AddExcludedDoctor) > 0 || len(u.AddExcludedService) > 0 ||
		u.TimeWindow != nil
}

func clinicTimezone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// generate resolves the tool-calling tier for this clinic, assembles the
// system prompt (including any narrowing instruction), and drives the
// bounded LLM tool-calling loop.
func (p *Pipeline) generate(ctx context.Context, tc *TurnContext, narrowing *NarrowingInstruction) error {
	stickyID := tc.Patient.PatientID
	if stickyID == "" {
		stickyID = tc.Phone
	}
	resolution := p.registry.Resolve(tc.ClinicID, llmtier.TierToolCalling, stickyID)

	provider, ok := p.providers.Provider(resolution.Provider)
	if !ok {
		return fmt.Errorf("pipeline: no provider registered for %q", resolution.Provider)
	}

	executor := p.tools.Executor(tc.ClinicID)
	turn := executor.NewTurn(sessionIDOrPhone(tc))

	orchestrator := llmtier.NewOrchestrator(provider, turn)

	messages := make([]llmtier.Message, 0, len(tc.History)+1)
	for _, h := range tc.History {
		messages = append(messages, llmtier.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, llmtier.Message{Role: "user", Content: tc.MessageBody})

	result, err := orchestrator.Run(ctx, llmtier.GenerateRequest{
		Model:    resolution.Model,
		System:   systemPrompt(tc, narrowing),
		Messages: messages,
		Tools:    p.tools.Schemas(tc.ClinicID),
	})
	if err != nil {
		return err
	}

	tc.LLMResult = result
	tc.Reply = result.Content
	return nil
}

func sessionIDOrPhone(tc *TurnContext) string {
	if tc.Session != nil {
		return tc.Session.ID
	}
	return tc.Phone
}

func systemPrompt(tc *TurnContext, narrowing *NarrowingInstruction) string {
	var b strings.Builder
	b.WriteString("You are a scheduling assistant for a medical clinic. Respond in the patient's language.\n")
	if narrowing != nil {
		switch {
		case narrowing.PreboundTool != "":
			b.WriteString(fmt.Sprintf("Prefer calling %s with the already-known parameters before asking the patient anything further.\n", narrowing.PreboundTool))
		case narrowing.ClarifyTemplate != "":
			b.WriteString(fmt.Sprintf("Ask the patient to clarify: %s.\n", narrowing.ClarifyTemplate))
		}
	}
	return b.String()
}

// postProcess handles step 8: prepending a state-echo when constraints
// changed this turn. It does not summarize the turn or record its outcome
// on the session.
func (p *Pipeline) postProcess(tc *TurnContext) {
	if tc.ConstraintsChanged && tc.Constraints != nil {
		echo := stateEcho(tc.Constraints)
		if echo != "" {
			tc.Reply = echo + "\n\n" + tc.Reply
		}
	}
}

func stateEcho(block *constraints.Block) string {
	var parts []string
	if block.DesiredService != "" {
		parts = append(parts, fmt.Sprintf("service: %s", block.DesiredService))
	}
	if block.DesiredDoctor != "" {
		parts = append(parts, fmt.Sprintf("doctor: %s", block.DesiredDoctor))
	}
	if !block.TimeWindow.IsZero() {
		parts = append(parts, fmt.Sprintf("when: %s", block.TimeWindow.Display))
	}
	if len(block.ExcludedDoctors) > 0 {
		parts = append(parts, fmt.Sprintf("not with: %s", strings.Join(block.ExcludedDoctors, ", ")))
	}
	if len(block.ExcludedServices) > 0 {
		parts = append(parts, fmt.Sprintf("excluding: %s", strings.Join(block.ExcludedServices, ", ")))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Got it: " + strings.Join(parts, ", ")
}
