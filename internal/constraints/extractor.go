package constraints

import (
	"strings"
	"time"
)

// metaResetPhrases clear the whole ConstraintBlock outright.
var metaResetPhrases = map[string][]string{
	"ru": {"начать заново", "забудьте всё", "сначала"},
	"en": {"start over", "forget everything", "reset"},
}

// forgetPrefixes introduce a single excluded entity.
var forgetPrefixes = map[string][]string{
	"ru": {"не нужен", "не надо", "забудьте про"},
	"en": {"forget", "not ", "no longer need"},
}

// switchMarkers introduce an "instead of X, want Y" correction.
var switchMarkers = map[string][]string{
	"ru": {"вместо"},
	"en": {"instead of"},
}

// sentence-fragment blacklist tokens and verbal suffixes: extracted
// entities ending in these are rejected as likely sentence fragments
// rather than a name.
var fragmentBlacklist = map[string][]string{
	"ru": {"хочу", "нужно", "пожалуйста"},
	"en": {"please", "want", "need"},
}

var verbalSuffixes = map[string][]string{
	"ru": {"ться", "ите", "йте"},
	"en": {"ing"},
}

const maxEntityLength = 50
const maxEntityTokens = 4

// Extraction is the structured result of parsing one message.
type Extraction struct {
	Update  Update
	IsReset bool
}

// Extract derives a constraint Update from a user message. It is
// intentionally conservative: an ambiguous or fragment-like candidate is
// dropped rather than risk a false constraint injection.
func Extract(message, lang string, clinicTZ *time.Location, now time.Time) Extraction {
	lower := strings.ToLower(strings.TrimSpace(message))

	for _, phrase := range phraseTable(metaResetPhrases, lang) {
		if strings.Contains(lower, phrase) {
			return Extraction{Update: Update{ClearAll: true}, IsReset: true}
		}
	}

	var upd Update

	for _, prefix := range phraseTable(forgetPrefixes, lang) {
		if idx := strings.Index(lower, prefix); idx >= 0 {
			candidate := strings.TrimSpace(lower[idx+len(prefix):])
			if entity, ok := validEntity(candidate, lang); ok {
				upd.AddExcludedDoctor = append(upd.AddExcludedDoctor, entity)
				upd.AddExcludedService = append(upd.AddExcludedService, entity)
			}
		}
	}

	for _, marker := range phraseTable(switchMarkers, lang) {
		if idx := strings.Index(lower, marker); idx >= 0 {
			rest := strings.TrimSpace(lower[idx+len(marker):])
			parts := strings.SplitN(rest, ",", 2)
			if len(parts) == 2 {
				oldEntity := strings.TrimSpace(parts[0])
				newEntity := extractWantedEntity(parts[1], lang)
				if entity, ok := validEntity(oldEntity, lang); ok {
					upd.AddExcludedDoctor = append(upd.AddExcludedDoctor, entity)
					upd.AddExcludedService = append(upd.AddExcludedService, entity)
				}
				if entity, ok := validEntity(newEntity, lang); ok {
					upd.DesiredService = &entity
				}
			}
		}
	}

	upd.TimeWindow = extractTimeWindow(lower, lang, clinicTZ, now)

	return Extraction{Update: upd}
}

func extractWantedEntity(s, lang string) string {
	s = strings.TrimSpace(s)
	for _, marker := range []string{"want", "хочу"} {
		if idx := strings.Index(s, marker); idx >= 0 {
			return strings.TrimSpace(s[idx+len(marker):])
		}
	}
	return s
}

func validEntity(candidate, lang string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || len(candidate) > maxEntityLength {
		return "", false
	}
	tokens := strings.Fields(candidate)
	if len(tokens) == 0 || len(tokens) > maxEntityTokens {
		return "", false
	}
	for _, bad := range phraseTable(fragmentBlacklist, lang) {
		for _, tok := range tokens {
			if tok == bad {
				return "", false
			}
		}
	}
	for _, suffix := range phraseTable(verbalSuffixes, lang) {
		if strings.HasSuffix(candidate, suffix) {
			return "", false
		}
	}
	return candidate, true
}

func phraseTable(table map[string][]string, lang string) []string {
	if p, ok := table[lang]; ok {
		return p
	}
	return table["en"]
}

// dateKeywords map a locale phrase to a day offset from now.
var dateKeywords = map[string]map[string]int{
	"en": {"today": 0, "tomorrow": 1, "next week": 7},
	"ru": {"сегодня": 0, "завтра": 1, "на следующей неделе": 7},
}

// extractTimeWindow normalizes a relative date/time phrase to an absolute
// clinic-timezone window with a human-readable display string. Returns
// nil if nothing recognizable was found.
func extractTimeWindow(lower, lang string, tz *time.Location, now time.Time) *TimeWindow {
	if tz == nil {
		tz = time.UTC
	}
	nowLocal := now.In(tz)

	for phrase, offsetDays := range dateKeywords[langOrDefault(lang)] {
		if strings.Contains(lower, phrase) {
			day := nowLocal.AddDate(0, 0, offsetDays)
			start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz)
			return &TimeWindow{
				Start:   start,
				End:     start.Add(24 * time.Hour),
				Display: phrase,
			}
		}
	}
	return nil
}

func langOrDefault(lang string) string {
	if _, ok := dateKeywords[lang]; ok {
		return lang
	}
	return "en"
}
