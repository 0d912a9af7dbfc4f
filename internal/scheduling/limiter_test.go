package scheduling

import (
	"testing"
	"time"
)

func TestLimitReserverAllowsUpToMax(t *testing.T) {
	r := NewLimitReserver()
	for i := 0; i < 3; i++ {
		allowed, count := r.Reserve("key", string(rune('a'+i)), 3, time.Hour)
		if !allowed {
			t.Fatalf("expected reservation %d to be allowed", i)
		}
		if count != i+1 {
			t.Fatalf("expected count %d, got %d", i+1, count)
		}
	}
	allowed, _ := r.Reserve("key", "overflow", 3, time.Hour)
	if allowed {
		t.Fatalf("expected 4th reservation to be denied")
	}
}

func TestLimitReserverPrunesExpiredMembers(t *testing.T) {
	r := NewLimitReserver()
	now := time.Now()
	r.clock = func() time.Time { return now }
	r.Reserve("key", "old", 1, time.Minute)

	r.clock = func() time.Time { return now.Add(2 * time.Minute) }
	allowed, count := r.Reserve("key", "new", 1, time.Minute)
	if !allowed || count != 1 {
		t.Fatalf("expected pruned window to allow a fresh reservation, got allowed=%v count=%d", allowed, count)
	}
}

func TestLimitReserverRelease(t *testing.T) {
	r := NewLimitReserver()
	r.Reserve("key", "tok", 1, time.Hour)
	r.Release("key", "tok")
	allowed, count := r.Reserve("key", "tok2", 1, time.Hour)
	if !allowed || count != 1 {
		t.Fatalf("expected release to free capacity, got allowed=%v count=%d", allowed, count)
	}
}
