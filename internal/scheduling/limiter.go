package scheduling

import (
	"sync"
	"time"
)

// limitMember is one token held against an occurrence-limit window.
type limitMember struct {
	token string
	at    time.Time
}

// LimitReserver enforces LIMIT_OCCURRENCE rules with an atomic sliding
// window, keyed per rule: prune members older than the window, check
// cardinality, and add a new member in one locked step. Generalizes the
// teacher's token-bucket Limiter (internal/ratelimit) from a fixed refill
// rate to a sliding count window sized by each rule's max_n/window.
type LimitReserver struct {
	mu      sync.Mutex
	windows map[string][]limitMember
	clock   func() time.Time
}

// NewLimitReserver creates an empty reserver.
func NewLimitReserver() *LimitReserver {
	return &LimitReserver{
		windows: make(map[string][]limitMember),
		clock:   time.Now,
	}
}

// Reserve attempts to add a uniquely-tagged member to key's window. It
// first prunes members older than window, then checks cardinality against
// maxN. Returns (allowed, count-after-reservation).
func (r *LimitReserver) Reserve(key, token string, maxN int, window time.Duration) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	cutoff := now.Add(-window)

	members := r.windows[key]
	fresh := members[:0]
	for _, m := range members {
		if m.at.After(cutoff) {
			fresh = append(fresh, m)
		}
	}

	if len(fresh) >= maxN {
		r.windows[key] = fresh
		return false, len(fresh)
	}

	fresh = append(fresh, limitMember{token: token, at: now})
	r.windows[key] = fresh
	return true, len(fresh)
}

// Release removes token from key's window if still present.
func (r *LimitReserver) Release(key, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.windows[key]
	for i, m := range members {
		if m.token == token {
			r.windows[key] = append(members[:i], members[i+1:]...)
			return
		}
	}
}
