package router

import "testing"

type stubClinic struct {
	services map[string]Service
	aliases  map[string]string
	locale   string
}

func (s stubClinic) Service(id string) (Service, bool) {
	svc, ok := s.services[id]
	return svc, ok
}

func (s stubClinic) ServiceAliases() map[string]string { return s.aliases }
func (s stubClinic) Locale() string                    { return s.locale }

func TestClassifyPendingActionAffirmative(t *testing.T) {
	res := Classify(ClassifyInput{
		Message: "yes please",
		Pending: &PendingAction{Kind: "offer_booking", ServiceID: "cleaning"},
	})
	if res.Lane != LaneScheduling || res.ServiceID != "cleaning" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifyPendingActionNegative(t *testing.T) {
	res := Classify(ClassifyInput{
		Message: "no thanks",
		Pending: &PendingAction{Kind: "offer_booking", ServiceID: "cleaning"},
	})
	if res.Lane != LaneFAQ {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifyServiceInfoBindsRememberedService(t *testing.T) {
	res := Classify(ClassifyInput{
		Message:        "how long does it take",
		BoundServiceID: "cleaning",
	})
	if res.Lane != LaneServiceInfo || res.ServiceID != "cleaning" || res.NeedsClarify {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifyServiceInfoNeedsClarificationWithoutBoundService(t *testing.T) {
	res := Classify(ClassifyInput{Message: "what's included"})
	if res.Lane != LaneServiceInfo || !res.NeedsClarify {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifyAliasMatchGoesPrice(t *testing.T) {
	clinic := stubClinic{aliases: map[string]string{"teeth cleaning": "svc-clean"}}
	res := Classify(ClassifyInput{Message: "how much is teeth cleaning", Clinic: clinic})
	if res.Lane != LanePrice || res.ServiceID != "svc-clean" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifyFAQKeyword(t *testing.T) {
	res := Classify(ClassifyInput{Message: "what are your hours"})
	if res.Lane != LaneFAQ {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifySchedulingKeywordWithoutServiceGoesComplex(t *testing.T) {
	res := Classify(ClassifyInput{Message: "I want to book an appointment"})
	if res.Lane != LaneComplex {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifySchedulingKeywordWithServiceGoesScheduling(t *testing.T) {
	res := Classify(ClassifyInput{Message: "book an appointment", BoundServiceID: "svc-clean"})
	if res.Lane != LaneScheduling || res.ServiceID != "svc-clean" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifyDefaultsToComplex(t *testing.T) {
	res := Classify(ClassifyInput{Message: "tell me a joke"})
	if res.Lane != LaneComplex {
		t.Fatalf("unexpected result: %+v", res)
	}
}
