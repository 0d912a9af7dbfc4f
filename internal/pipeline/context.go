// Package pipeline runs the fixed ordered step sequence that turns one
// inbound message into an outbound reply: session management, context
// hydration, escalation check, routing, constraint extraction, preference
// narrowing, LLM generation, and post-processing.
package pipeline

import (
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/router"
	"github.com/dsmolchanov/clinic-scheduler/internal/sessionmgr"
)

// ClinicProfile is a read-only per-clinic snapshot, cached with a short
// TTL by the Hydrator.
type ClinicProfile struct {
	ClinicID      string
	Timezone      string
	BusinessHours string
	Services      map[string]router.Service
	Doctors       []string
	AliasMap      map[string]string
	LocaleTag     string
}

// Service and ServiceAliases/Locale implement router.ClinicData so a
// hydrated ClinicProfile can be passed straight into the router.
func (c ClinicProfile) Service(id string) (router.Service, bool) {
	svc, ok := c.Services[id]
	return svc, ok
}

func (c ClinicProfile) ServiceAliases() map[string]string { return c.AliasMap }
func (c ClinicProfile) Locale() string                    { return c.LocaleTag }

// PatientProfile is the cross-session patient identity record.
type PatientProfile struct {
	PatientID         string
	Names             []string
	Phone             string
	PreferredLanguage string
	HardDoctorBans    []string
	HardServiceBans   []string
	Allergies         []string
}

// HistoryMessage is one bounded prior turn, kept for LLM context.
type HistoryMessage struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// TurnContext is the mutable object threaded through every pipeline step.
type TurnContext struct {
	ClinicID    string
	Phone       string
	MessageBody string
	Language    string

	Clinic       ClinicProfile
	Patient      PatientProfile
	Session      *sessionmgr.Session
	Constraints  *constraints.Block
	History      []HistoryMessage
	Pending      *router.PendingAction

	RouteResult  *router.ClassifyResult
	FastPathReply string

	LLMResult *llmtier.Result

	Reply            string
	ConstraintsChanged bool
	Escalated        bool
	EscalationID     string

	Done bool // set by a step to short-circuit the remaining pipeline
}
