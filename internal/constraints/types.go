// Package constraints maintains the per-session ConstraintBlock: the set of
// desired and excluded doctors/services and the active time window that
// every scheduling tool call must respect for the lifetime of a session.
package constraints

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when no block exists for a session.
var ErrNotFound = errors.New("constraints: not found")

// DefaultTTL matches the original implementation's 3600-second block TTL.
const DefaultTTL = time.Hour

// TimeWindow is a normalized, clinic-timezone-relative scheduling window.
type TimeWindow struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Display string    `json:"display"` // human phrase, e.g. "tomorrow"
}

// IsZero reports whether the window was never set.
func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero() && w.Display == ""
}

// Block is the enforceable constraint state for one session.
type Block struct {
	SessionID        string     `json:"session_id"`
	DesiredService   string     `json:"desired_service,omitempty"`
	DesiredDoctor    string     `json:"desired_doctor,omitempty"`
	ExcludedDoctors  []string   `json:"excluded_doctors,omitempty"`
	ExcludedServices []string   `json:"excluded_services,omitempty"`
	TimeWindow       TimeWindow `json:"time_window,omitempty"`
	FreshSession     bool       `json:"fresh_session"`
	LastUpdated      time.Time  `json:"last_updated"`
}

// Update describes a mutation to apply to a Block. Nil pointer fields are
// left untouched; exclusion slices are appended, not replaced.
type Update struct {
	DesiredService    *string
	DesiredDoctor     *string
	AddExcludedDoctor []string
	AddExcludedService []string
	TimeWindow        *TimeWindow
	ClearAll          bool
}

// Store is a short-TTL key-value backed constraint block store. The
// production backend is an external KV service (Redis-shaped); Store is
// defined narrowly enough that any such client can implement it, and
// NewMemoryStore provides an in-process implementation for tests and for
// single-node deployments.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Block, error)
	Set(ctx context.Context, block *Block, ttl time.Duration) error
	Update(ctx context.Context, sessionID string, upd Update, ttl time.Duration) (*Block, error)
	Clear(ctx context.Context, sessionID string) error
}
