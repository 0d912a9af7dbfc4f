// Package router classifies an inbound message into a lane and, for the
// FAQ/PRICE/SERVICE_INFO lanes, renders a templated answer directly from
// clinic data without involving the LLM.
package router

// Lane is the destination a classified message is routed to.
type Lane string

const (
	LaneScheduling   Lane = "scheduling"
	LaneFAQ          Lane = "faq"
	LanePrice        Lane = "price"
	LaneServiceInfo  Lane = "service_info"
	LaneComplex      Lane = "complex"
)

// PendingAction describes an outstanding offer the prior turn made, e.g.
// "offer_booking", that the current message may be replying to.
type PendingAction struct {
	Kind      string
	ServiceID string
}

// Service is the subset of clinic service data the router/templates need.
type Service struct {
	ID          string
	Name        string
	Description string
	DurationMin int
	PriceCents  int64
	Currency    string // ISO 4217, e.g. "RUB"
}

// ClinicData supplies the router with everything it needs to classify and
// answer without calling the LLM.
type ClinicData interface {
	Service(id string) (Service, bool)
	ServiceAliases() map[string]string // alias (lowercased) -> service id
	Locale() string                    // BCP-47, e.g. "ru-RU"
}

// ClassifyInput is one turn's classification request.
type ClassifyInput struct {
	Message        string
	Language       string
	Pending        *PendingAction
	BoundServiceID string // already-remembered service for this session, "" if none
	Clinic         ClinicData
}

// ClassifyResult is the routing decision, and for a fast-path lane, the
// service it resolved to (if any).
type ClassifyResult struct {
	Lane           Lane
	ServiceID      string
	NeedsClarify   bool
	AliasScore     float64
}
