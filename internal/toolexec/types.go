// Package toolexec mediates every LLM-requested scheduling tool call: it
// enforces a per-turn call budget, validates arguments against the active
// ConstraintBlock, checks declared tool dependencies, and records what
// happened for the post-turn hallucination check. It does not reserve
// policy limit counters; Spec.CausesConfirm is not read by the executor.
package toolexec

import (
	"context"
	"encoding/json"

	"github.com/dsmolchanov/clinic-scheduler/internal/audit"
	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/tools/policy"
)

// MaxCallsPerTurn is the default per-turn tool call budget.
const MaxCallsPerTurn = 8

// Spec declares a tool's shape: which arguments it needs and which other
// tools must have already succeeded in this turn before it may run.
type Spec struct {
	Name            string
	RequiredArgs    []string
	Dependencies    []string
	DoctorArgField  string // arg name holding a doctor reference, "" if none
	ServiceArgField string // arg name holding a service reference, "" if none
	TimeArgField    string // arg name holding a datetime reference, "" if none
	CausesConfirm   bool   // true for tools that create/modify appointments
}

// Handler executes one tool call with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Result is a tool's normalized outcome.
type Result struct {
	Content string
	IsError bool
}

// Args decodes a ToolCall's raw JSON arguments into a generic map.
func Args(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Rejection is the reason a call was blocked before it ever reached its
// Handler. It is returned to the LLM as a tool error result, not surfaced
// to the patient.
type Rejection string

const (
	RejectNone            Rejection = ""
	RejectBudgetExhausted Rejection = "tool call budget exhausted for this turn"
	RejectMissingArgs     Rejection = "missing required arguments"
	RejectExcludedDoctor  Rejection = "doctor is excluded by this session's constraints"
	RejectExcludedService Rejection = "service is excluded by this session's constraints"
	RejectServiceConflict Rejection = "service conflicts with the previously bound desired service"
	RejectOutsideWindow   Rejection = "requested time falls outside the bound time window"
	RejectDependencyUnmet Rejection = "a prerequisite tool has not yet succeeded this turn"
	RejectNotAuthorized   Rejection = "tool is not authorized for this clinic/channel"
	RejectUnknownTool     Rejection = "unknown tool"
)

// Config wires an Executor's static collaborators.
type Config struct {
	Specs           map[string]Spec
	Handlers        map[string]Handler
	ToolPolicy      *policy.Policy
	Resolver        *policy.Resolver
	Constraints     constraints.Store
	MaxCallsPerTurn int
	Audit           *audit.Logger
}
