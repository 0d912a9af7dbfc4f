package router

import "strings"

// affirmative/negative/keyword tables are locale-specific allow-lists,
// matching the original's per-language phrase sets. Russian and English
// are covered; unknown languages fall through to the English table.
var affirmativePhrases = map[string][]string{
	"ru": {"да", "давайте", "хорошо", "ок", "окей", "конечно", "запишите"},
	"en": {"yes", "sure", "ok", "okay", "sounds good", "please", "book it"},
}

var negativePhrases = map[string][]string{
	"ru": {"нет", "не сейчас", "не надо", "отмена"},
	"en": {"no", "not now", "cancel", "nevermind"},
}

var serviceInfoKeywords = map[string][]string{
	"ru": {"сколько длится", "как долго", "что входит", "что включено"},
	"en": {"how long", "what's included", "what is included", "how much time"},
}

var faqKeywords = map[string][]string{
	"ru": {"адрес", "время работы", "часы работы", "где находитесь", "парковка"},
	"en": {"address", "hours", "open", "location", "parking"},
}

var schedulingKeywords = map[string][]string{
	"ru": {"записаться", "запись", "хочу на прием", "свободное время"},
	"en": {"book", "appointment", "schedule", "available time"},
}

func phrasesFor(table map[string][]string, lang string) []string {
	if p, ok := table[lang]; ok {
		return p
	}
	return table["en"]
}

func containsAny(message string, phrases []string) bool {
	lower := strings.ToLower(message)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Classify runs the fixed classification priority chain: first match wins.
//  1. Pending action + affirmative reply -> SCHEDULING.
//  2. Pending action + negative reply -> FAQ.
//  3. Service-info keywords -> SERVICE_INFO (bind to remembered service if
//     any, else mark needs-clarification).
//  4. Alias match with fuzzy score >= 0.90 -> PRICE with bound service.
//  5. FAQ keyword -> FAQ.
//  6. Scheduling keyword + bound service -> SCHEDULING; without one ->
//     COMPLEX.
//  7. Else -> COMPLEX.
func Classify(in ClassifyInput) ClassifyResult {
	lang := in.Language
	if lang == "" {
		lang = "en"
	}

	if in.Pending != nil {
		if containsAny(in.Message, phrasesFor(affirmativePhrases, lang)) {
			return ClassifyResult{Lane: LaneScheduling, ServiceID: in.Pending.ServiceID}
		}
		if containsAny(in.Message, phrasesFor(negativePhrases, lang)) {
			return ClassifyResult{Lane: LaneFAQ}
		}
	}

	if containsAny(in.Message, phrasesFor(serviceInfoKeywords, lang)) {
		if in.BoundServiceID != "" {
			return ClassifyResult{Lane: LaneServiceInfo, ServiceID: in.BoundServiceID}
		}
		return ClassifyResult{Lane: LaneServiceInfo, NeedsClarify: true}
	}

	if in.Clinic != nil {
		if svcID, score := bestAliasMatch(in.Message, in.Clinic.ServiceAliases()); score >= aliasMatchThreshold {
			return ClassifyResult{Lane: LanePrice, ServiceID: svcID, AliasScore: score}
		}
	}

	if containsAny(in.Message, phrasesFor(faqKeywords, lang)) {
		return ClassifyResult{Lane: LaneFAQ}
	}

	if containsAny(in.Message, phrasesFor(schedulingKeywords, lang)) {
		if in.BoundServiceID != "" {
			return ClassifyResult{Lane: LaneScheduling, ServiceID: in.BoundServiceID}
		}
		return ClassifyResult{Lane: LaneComplex}
	}

	return ClassifyResult{Lane: LaneComplex}
}
