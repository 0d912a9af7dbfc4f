package constraints

import "testing"

func TestExcludesDoctorFuzzyAndMorphology(t *testing.T) {
	excluded := []string{"Dr. Shtern"}

	cases := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"exact", "Dr. Shtern", true},
		{"case insensitive", "dr. shtern", true},
		{"typo within distance 2", "Dr. Shtren", true},
		{"unrelated name", "Dr. Dan", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExcludesDoctor(tc.candidate, excluded); got != tc.want {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}

func TestNameVariantsStripsInflection(t *testing.T) {
	variants := nameVariants("иванова")
	found := false
	for _, v := range variants {
		if v == "иван" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected nominative variant among %v", variants)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"kitten", "sitting", 3},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Fatalf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
