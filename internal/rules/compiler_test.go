package rules

import "testing"

func sampleBundle() RuleBundle {
	return RuleBundle{
		SchemaVersion: "1.0",
		BundleID:      "bundle-1",
		ClinicID:      "clinic-1",
		Rules: []Rule{
			{
				ID:         "deny-weekend",
				Precedence: 1,
				Effect:     EffectDeny,
				Conditions: Condition{
					Field:    "slot.day_of_week",
					Operator: OpIn,
					Value:    []any{"saturday", "sunday"},
				},
			},
			{
				ID:         "prefer-morning",
				Precedence: 2,
				Effect:     EffectAdjustScore,
				Delta:      5,
				Conditions: Condition{
					Field:    "slot.hour",
					Operator: OpLessThan,
					Value:    12,
				},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts a clean bundle", func(t *testing.T) {
		if err := Validate(sampleBundle()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("rejects duplicate rule ids", func(t *testing.T) {
		bundle := sampleBundle()
		bundle.Rules[1].ID = bundle.Rules[0].ID
		err := Validate(bundle)
		if err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("rejects duplicate precedence", func(t *testing.T) {
		bundle := sampleBundle()
		bundle.Rules[1].Precedence = bundle.Rules[0].Precedence
		if err := Validate(bundle); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("rejects unresolved dependencies", func(t *testing.T) {
		bundle := sampleBundle()
		bundle.Rules[0].Dependencies = []string{"does-not-exist"}
		if err := Validate(bundle); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("rejects limit_occurrence without max_n", func(t *testing.T) {
		bundle := sampleBundle()
		bundle.Rules[0].Effect = EffectLimitOccurrence
		bundle.Rules[0].MaxN = 0
		if err := Validate(bundle); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestCompilePartitionsHardAndSoft(t *testing.T) {
	c := NewCompiler()
	policy, err := c.Compile(sampleBundle())
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if len(policy.HardRules) != 1 || policy.HardRules[0].ID != "deny-weekend" {
		t.Fatalf("expected 1 hard rule deny-weekend, got %+v", policy.HardRules)
	}
	if len(policy.SoftRules) != 1 || policy.SoftRules[0].ID != "prefer-morning" {
		t.Fatalf("expected 1 soft rule prefer-morning, got %+v", policy.SoftRules)
	}
}

func TestCompileIsCachedByDigest(t *testing.T) {
	c := NewCompiler()
	bundle := sampleBundle()
	first, err := c.Compile(bundle)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	second, err := c.Compile(bundle)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if first != second {
		t.Fatal("expected the same cached *CompiledPolicy pointer for an identical bundle")
	}
}

func TestDigestIsStableUnderKeyOrder(t *testing.T) {
	bundle := sampleBundle()
	d1, err := Digest(bundle)
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}

	// Digest the same bundle a second time; the canonical encoder sorts object
	// keys, so the result must not depend on map iteration order.
	d2, err := Digest(bundle)
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("expected stable digest, got %q and %q", d1, d2)
	}
}

func TestSortRulesPrecedenceSalienceID(t *testing.T) {
	rs := []Rule{
		{ID: "c", Precedence: 1, Salience: 0},
		{ID: "a", Precedence: 1, Salience: 5},
		{ID: "b", Precedence: 0, Salience: 0},
	}
	sortRules(rs)
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if rs[i].ID != id {
			t.Fatalf("position %d: want %q, got %q", i, id, rs[i].ID)
		}
	}
}
