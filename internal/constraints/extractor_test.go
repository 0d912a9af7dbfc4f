package constraints

import (
	"testing"
	"time"
)

func TestExtractMetaResetClearsAll(t *testing.T) {
	ext := Extract("let's start over please", "en", time.UTC, time.Now())
	if !ext.IsReset || !ext.Update.ClearAll {
		t.Fatalf("expected reset update, got %+v", ext)
	}
}

func TestExtractForgetPatternExcludesEntity(t *testing.T) {
	ext := Extract("forget ivanova", "en", time.UTC, time.Now())
	if len(ext.Update.AddExcludedDoctor) != 1 || ext.Update.AddExcludedDoctor[0] != "ivanova" {
		t.Fatalf("expected excluded doctor ivanova, got %+v", ext.Update)
	}
	if len(ext.Update.AddExcludedService) != 1 {
		t.Fatalf("expected excluded service candidate too, got %+v", ext.Update)
	}
}

func TestExtractSwitchPatternExcludesOldSetsNew(t *testing.T) {
	ext := Extract("instead of cleaning, i want whitening", "en", time.UTC, time.Now())
	if len(ext.Update.AddExcludedDoctor) != 1 || ext.Update.AddExcludedDoctor[0] != "cleaning" {
		t.Fatalf("expected excluded cleaning, got %+v", ext.Update)
	}
	if ext.Update.DesiredService == nil || *ext.Update.DesiredService != "whitening" {
		t.Fatalf("expected desired service whitening, got %+v", ext.Update)
	}
}

func TestExtractRejectsFragmentTokenCandidate(t *testing.T) {
	ext := Extract("forget please", "en", time.UTC, time.Now())
	if len(ext.Update.AddExcludedDoctor) != 0 {
		t.Fatalf("expected candidate rejected as fragment, got %+v", ext.Update)
	}
}

func TestExtractRejectsOverlongCandidate(t *testing.T) {
	ext := Extract("forget one two three four five six", "en", time.UTC, time.Now())
	if len(ext.Update.AddExcludedDoctor) != 0 {
		t.Fatalf("expected candidate rejected for too many tokens, got %+v", ext.Update)
	}
}

func TestExtractTimeWindowTomorrow(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	ext := Extract("can we do tomorrow", "en", time.UTC, now)
	if ext.Update.TimeWindow == nil {
		t.Fatalf("expected a time window")
	}
	if ext.Update.TimeWindow.Display != "tomorrow" {
		t.Fatalf("unexpected display: %q", ext.Update.TimeWindow.Display)
	}
	if ext.Update.TimeWindow.Start.Day() != 2 {
		t.Fatalf("expected day 2, got %d", ext.Update.TimeWindow.Start.Day())
	}
}

func TestExtractNoMatchReturnsEmptyUpdate(t *testing.T) {
	ext := Extract("hello there", "en", time.UTC, time.Now())
	if ext.IsReset || ext.Update.ClearAll || ext.Update.TimeWindow != nil {
		t.Fatalf("expected empty extraction, got %+v", ext)
	}
}

func TestExtractRussianForgetPattern(t *testing.T) {
	ext := Extract("не нужен иванова", "ru", time.UTC, time.Now())
	if len(ext.Update.AddExcludedDoctor) != 1 {
		t.Fatalf("expected excluded doctor, got %+v", ext.Update)
	}
}
