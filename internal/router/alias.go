package router

import "strings"

// aliasMatchThreshold is the minimum fuzzy score for alias resolution to
// bind a service and route to the PRICE lane without further clarification.
const aliasMatchThreshold = 0.90

// bestAliasMatch finds the clinic service alias with the highest fuzzy
// score against message, returning ("", 0) if nothing scores above zero.
func bestAliasMatch(message string, aliases map[string]string) (serviceID string, score float64) {
	normalizedMsg := strings.ToLower(message)
	var best float64
	var bestID string
	for alias, svcID := range aliases {
		for _, word := range candidateNGrams(normalizedMsg, alias) {
			s := similarity(word, alias)
			if s > best {
				best = s
				bestID = svcID
			}
		}
	}
	return bestID, best
}

// candidateNGrams extracts sliding windows of the message sized to match
// the alias's word count, so a multi-word alias can be compared against
// the equivalent span rather than the whole message.
func candidateNGrams(message, alias string) []string {
	words := strings.Fields(message)
	n := len(strings.Fields(alias))
	if n <= 0 {
		n = 1
	}
	if len(words) < n {
		return []string{message}
	}
	var out []string
	for i := 0; i+n <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+n], " "))
	}
	return out
}

// similarity returns a 0-1 score: 1 - (edit distance / max length).
func similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein(a, b)
	score := 1 - float64(dist)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

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
