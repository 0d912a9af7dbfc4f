package scheduling

import (
	"context"
	"testing"
	"time"
)

func TestSLASweeperInvokesOnBreach(t *testing.T) {
	store := NewMemoryEscalationStore()
	past := &Escalation{ID: "esc-1", Status: EscalationOpen, SLADeadline: time.Now().Add(-time.Minute)}
	future := &Escalation{ID: "esc-2", Status: EscalationOpen, SLADeadline: time.Now().Add(time.Hour)}
	store.Create(context.Background(), past)
	store.Create(context.Background(), future)

	var breached []string
	sweeper := NewSLASweeper(store, nil, func(e *Escalation) { breached = append(breached, e.ID) })
	sweeper.sweepOnce(context.Background())

	if len(breached) != 1 || breached[0] != "esc-1" {
		t.Fatalf("expected only esc-1 to be flagged, got %v", breached)
	}
}
