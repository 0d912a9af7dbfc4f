package constraints

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreUpdateAccumulatesExclusions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Update(ctx, "sess-1", Update{AddExcludedDoctor: []string{"Dr. Dan"}}, time.Minute)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	block, err := store.Update(ctx, "sess-1", Update{AddExcludedDoctor: []string{"Dr. Lee"}}, time.Minute)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(block.ExcludedDoctors) != 2 {
		t.Fatalf("expected 2 excluded doctors, got %v", block.ExcludedDoctors)
	}
}

func TestMemoryStoreClearAllResetsBlock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _ = store.Update(ctx, "sess-1", Update{AddExcludedDoctor: []string{"Dr. Dan"}}, time.Minute)

	block, err := store.Update(ctx, "sess-1", Update{ClearAll: true}, time.Minute)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(block.ExcludedDoctors) != 0 {
		t.Fatalf("expected cleared block, got %v", block)
	}
}

func TestMemoryStoreGetExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	store.clock = func() time.Time { return now }

	if err := store.Set(ctx, &Block{SessionID: "sess-1"}, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	store.clock = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := store.Get(ctx, "sess-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}
