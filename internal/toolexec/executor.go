package toolexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
)

// Executor mediates scheduling tool calls for one clinic/channel
// configuration. Turn creates the per-turn state a single orchestrator run
// needs.
type Executor struct {
	cfg Config
}

// NewExecutor builds an Executor, filling in defaults for an unset call
// budget.
func NewExecutor(cfg Config) *Executor {
	if cfg.MaxCallsPerTurn <= 0 {
		cfg.MaxCallsPerTurn = MaxCallsPerTurn
	}
	return &Executor{cfg: cfg}
}

// AuditEntry records one tool call attempt for the per-turn audit trail.
type AuditEntry struct {
	Tool      string
	Args      map[string]any
	Result    Result
	Rejection Rejection
}

// Turn is per-request, per-session state: the prior-results map used for
// dependency checks, the call budget counter, and the audit trail. It
// implements llmtier.ToolRunner so it can be handed straight to an
// Orchestrator.
type Turn struct {
	executor  *Executor
	sessionID string

	mu                   sync.Mutex
	calls                int
	priorResults         map[string]Result
	audit                []AuditEntry
	hallucinationBlocked bool
}

// NewTurn starts fresh per-turn state for a session.
func (e *Executor) NewTurn(sessionID string) *Turn {
	return &Turn{
		executor:     e,
		sessionID:    sessionID,
		priorResults: make(map[string]Result),
	}
}

// RunTool implements llmtier.ToolRunner.
func (t *Turn) RunTool(ctx context.Context, call llmtier.ToolCall) llmtier.ToolResult {
	args, err := Args(call.Arguments)
	if err != nil {
		return t.reject(call.Name, nil, Rejection(fmt.Sprintf("invalid arguments: %v", err)))
	}

	res, rejection := t.execute(ctx, call.Name, args)
	if rejection != RejectNone {
		return t.reject(call.Name, args, rejection)
	}
	return llmtier.ToolResult{Content: res.Content, IsError: res.IsError}
}

func (t *Turn) reject(tool string, args map[string]any, reason Rejection) llmtier.ToolResult {
	t.mu.Lock()
	t.audit = append(t.audit, AuditEntry{Tool: tool, Args: args, Rejection: reason})
	t.hallucinationBlocked = true
	t.mu.Unlock()
	if t.executor.cfg.Audit != nil {
		t.executor.cfg.Audit.LogToolDenied(context.Background(), tool, "", string(reason), "", t.sessionID)
	}
	return llmtier.ToolResult{Content: string(reason), IsError: true}
}

// execute runs the full gate pipeline: budget, authorization, args,
// dependencies, state gate, dispatch, record.
func (t *Turn) execute(ctx context.Context, name string, args map[string]any) (Result, Rejection) {
	t.mu.Lock()
	if t.calls >= t.executor.cfg.MaxCallsPerTurn {
		t.mu.Unlock()
		return Result{}, RejectBudgetExhausted
	}
	t.calls++
	t.mu.Unlock()

	spec, ok := t.executor.cfg.Specs[name]
	if !ok {
		return Result{}, RejectUnknownTool
	}

	if t.executor.cfg.Resolver != nil && t.executor.cfg.ToolPolicy != nil {
		if !t.executor.cfg.Resolver.IsAllowed(t.executor.cfg.ToolPolicy, name) {
			return Result{}, RejectNotAuthorized
		}
	}

	for _, req := range spec.RequiredArgs {
		if _, ok := args[req]; !ok {
			return Result{}, RejectMissingArgs
		}
	}

	for _, dep := range spec.Dependencies {
		t.mu.Lock()
		prior, satisfied := t.priorResults[dep]
		t.mu.Unlock()
		if !satisfied || prior.IsError {
			return Result{}, RejectDependencyUnmet
		}
	}

	if rej := t.checkStateGate(ctx, spec, args); rej != RejectNone {
		return Result{}, rej
	}

	handler, ok := t.executor.cfg.Handlers[name]
	if !ok {
		return Result{}, RejectUnknownTool
	}

	started := time.Now()
	result, err := handler(ctx, args)
	if err != nil {
		result = Result{Content: err.Error(), IsError: true}
	}

	t.mu.Lock()
	t.priorResults[name] = result
	t.audit = append(t.audit, AuditEntry{Tool: name, Args: args, Result: result})
	t.mu.Unlock()

	if t.executor.cfg.Audit != nil {
		t.executor.cfg.Audit.LogToolCompletion(ctx, name, "", !result.IsError, result.Content, time.Since(started), t.sessionID)
	}

	return result, RejectNone
}

// checkStateGate validates a call's arguments against the session's active
// ConstraintBlock: excluded doctor/service, desired-service conflict, and
// time-window bounds (bounds checking is left to the caller's handler,
// which has the clinic timezone; this gate only covers exclusions here).
func (t *Turn) checkStateGate(ctx context.Context, spec Spec, args map[string]any) Rejection {
	if t.executor.cfg.Constraints == nil {
		return RejectNone
	}
	block, err := t.executor.cfg.Constraints.Get(ctx, t.sessionID)
	if err != nil {
		return RejectNone // no block yet: nothing to enforce
	}

	if spec.DoctorArgField != "" {
		if doctor, ok := args[spec.DoctorArgField].(string); ok && block.DoctorExcluded(doctor) {
			return RejectExcludedDoctor
		}
	}
	if spec.ServiceArgField != "" {
		if service, ok := args[spec.ServiceArgField].(string); ok {
			if block.ServiceExcluded(service) {
				return RejectExcludedService
			}
			if block.ConflictsWithDesiredService(service) {
				return RejectServiceConflict
			}
		}
	}
	return RejectNone
}

// HallucinationBlocked reports whether any call was rejected before dispatch
// this turn: by the state gate, or by the budget, authorization, argument,
// dependency or unknown-tool checks.
func (t *Turn) HallucinationBlocked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hallucinationBlocked
}

// Audit returns the full per-turn audit trail.
func (t *Turn) Audit() []AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AuditEntry, len(t.audit))
	copy(out, t.audit)
	return out
}

// ToolsCalled returns the names of tools that completed (successfully or
// not) this turn.
func (t *Turn) ToolsCalled() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.priorResults))
	for name := range t.priorResults {
		names = append(names, name)
	}
	return names
}
