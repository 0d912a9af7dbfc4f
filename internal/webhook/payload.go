// Package webhook ingests inbound WhatsApp messages from an Evolution API
// instance, deduplicates and rate-limits them, resolves the sending
// instance to a clinic, and hands the extracted text to the pipeline.
package webhook

import "strings"

// EvolutionPayload is the subset of an Evolution API message-upsert event
// this service cares about. Evolution nests the actual WhatsApp protocol
// message under Message.Message, keyed by content type.
type EvolutionPayload struct {
	InstanceName string         `json:"instanceName"`
	Message      EvolutionEvent `json:"message"`
}

type EvolutionEvent struct {
	Key      EvolutionKey   `json:"key"`
	PushName string         `json:"pushName"`
	Message  map[string]any `json:"message"`
	Text     string         `json:"text"`
	From     string         `json:"from"`
}

type EvolutionKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// DefaultClinicID is used when an instance name doesn't carry a
// recoverable clinic UUID, matching the original webhook's fallback to a
// known default clinic rather than dropping the message. Exported so the
// server wiring can seed the matching clinic profile at startup.
const DefaultClinicID = "3e411ecb-3411-4add-91e2-8fa897310cb0"

const defaultClinicID = DefaultClinicID

// instancePrefix is the expected prefix of an Evolution instance name,
// "clinic-{uuid}-{timestamp}".
const instancePrefix = "clinic-"

// clinicIDFromInstance recovers the clinic UUID embedded in an Evolution
// instance name. A UUID is 8-4-4-4-12 hex groups, which split on "-" into
// five tokens; the instance name prepends "clinic" and appends a
// timestamp token, for seven tokens total. A name with at least the six
// tokens up to the UUID is accepted; tokens 1-5 are the UUID.
func clinicIDFromInstance(instanceName string) string {
	if !strings.HasPrefix(instanceName, instancePrefix) {
		return defaultClinicID
	}
	parts := strings.Split(instanceName, "-")
	if len(parts) < 6 {
		return defaultClinicID
	}
	return strings.Join(parts[1:6], "-")
}

// phoneFromJID strips the WhatsApp JID suffix Evolution appends to a
// sender's number.
func phoneFromJID(jid string) string {
	return strings.TrimSuffix(jid, "@s.whatsapp.net")
}

// messageText extracts the human-readable body from Evolution's nested
// message envelope, checking every content type the instance may send a
// caption or conversation body under. Evolution sends captions for media
// messages rather than the media itself, so this is also the only text a
// caption-only image or video message will ever surface as.
func messageText(ev EvolutionEvent) string {
	if nested := ev.Message; nested != nil {
		if s, ok := nested["conversation"].(string); ok && s != "" {
			return s
		}
		if ext, ok := nested["extendedTextMessage"].(map[string]any); ok {
			if s, ok := ext["text"].(string); ok && s != "" {
				return s
			}
		}
		if img, ok := nested["imageMessage"].(map[string]any); ok {
			if s, ok := img["caption"].(string); ok && s != "" {
				return s
			}
		}
		if vid, ok := nested["videoMessage"].(map[string]any); ok {
			if s, ok := vid["caption"].(string); ok && s != "" {
				return s
			}
		}
	}
	if ev.Text != "" {
		return ev.Text
	}
	return ""
}

// senderFromEvent resolves the sending phone number, preferring the
// protocol-level JID and falling back to a flat "from" field some
// compatibility payloads use instead.
func senderFromEvent(ev EvolutionEvent) string {
	if jid := ev.Key.RemoteJID; jid != "" {
		return phoneFromJID(jid)
	}
	return ev.From
}

// detectLanguage is a two-locale heuristic standing in for a real
// language-detection service: if any Cyrillic code point appears, the
// message is routed as Russian, matching the ru/en split every phrase
// table in this repo is keyed on.
func detectLanguage(text string) string {
	for _, r := range text {
		if r >= 0x0400 && r <= 0x04FF {
			return "ru"
		}
	}
	return "en"
}
