package constraints

import "strings"

// ExcludesDoctor reports whether candidate matches any entry in excluded,
// using normalization, morphological variants, and fuzzy matching. Doctor
// names tolerate an edit distance of up to 2.
func ExcludesDoctor(candidate string, excluded []string) bool {
	return matchesAny(candidate, excluded, 2)
}

// ExcludesService reports the same, with a tighter edit-distance tolerance
// of 1 (service names are shorter and more likely to collide falsely).
func ExcludesService(candidate string, excluded []string) bool {
	return matchesAny(candidate, excluded, 1)
}

func matchesAny(candidate string, excluded []string, maxDistance int) bool {
	candidateVariants := nameVariants(candidate)
	for _, ex := range excluded {
		exVariants := nameVariants(ex)
		for _, cv := range candidateVariants {
			for _, ev := range exVariants {
				if cv == ev {
					return true
				}
				if levenshtein(cv, ev) <= maxDistance {
					return true
				}
			}
		}
	}
	return false
}

// nameVariants normalizes a name and returns it alongside plausible
// nominative forms, stripping common Russian genitive/dative/instrumental
// person-name suffixes so "Шtern" style inflections still match the
// canonical form stored in the excluded set. This is intentionally a fixed
// suffix table, not a full morphological analyzer.
func nameVariants(raw string) []string {
	base := normalize(raw)
	variants := map[string]bool{base: true}

	for _, suffix := range genitiveSuffixes {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix)+2 {
			variants[strings.TrimSuffix(base, suffix)] = true
		}
	}
	for _, suffix := range dativeSuffixes {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix)+2 {
			variants[strings.TrimSuffix(base, suffix)] = true
		}
	}

	out := make([]string, 0, len(variants))
	for v := range variants {
		out = append(out, v)
	}
	return out
}

var genitiveSuffixes = []string{"ова", "ева", "ина", "ого", "его"}
var dativeSuffixes = []string{"ову", "еву", "ину", "ому", "ему"}

func normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "доктор ")
	s = strings.TrimPrefix(s, "dr. ")
	s = strings.TrimPrefix(s, "dr ")
	return s
}

// levenshtein returns the edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			cur[j] = min3(del, ins, sub)
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
