package router

import "testing"

func TestRenderPriceFormatsCurrency(t *testing.T) {
	clinic := stubClinic{
		services: map[string]Service{
			"svc-clean": {ID: "svc-clean", Name: "Teeth cleaning", PriceCents: 250000, Currency: "RUB"},
		},
		locale: "ru-RU",
	}
	out, err := RenderPrice(clinic, "svc-clean")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty rendered price")
	}
}

func TestRenderPriceFailsOnUnknownService(t *testing.T) {
	clinic := stubClinic{services: map[string]Service{}, locale: "en-US"}
	if _, err := RenderPrice(clinic, "missing"); err == nil {
		t.Fatalf("expected error for unknown service")
	}
}

func TestRenderPriceFailsOnInvalidCurrency(t *testing.T) {
	clinic := stubClinic{
		services: map[string]Service{"svc": {ID: "svc", Name: "X", Currency: "NOTACODE"}},
		locale:   "en-US",
	}
	if _, err := RenderPrice(clinic, "svc"); err == nil {
		t.Fatalf("expected error for invalid currency code")
	}
}

func TestRenderServiceInfo(t *testing.T) {
	clinic := stubClinic{
		services: map[string]Service{
			"svc-clean": {ID: "svc-clean", Name: "Teeth cleaning", DurationMin: 45, Description: "Includes polish."},
		},
	}
	out, err := RenderServiceInfo(clinic, "svc-clean")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty rendered service info")
	}
}

func TestRenderFAQFallsBackToEnglishTable(t *testing.T) {
	out, err := RenderFAQ("what is your address", "fr")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty FAQ answer")
	}
}

func TestRenderFAQErrorsWhenUnmatched(t *testing.T) {
	if _, err := RenderFAQ("tell me a joke", "en"); err == nil {
		t.Fatalf("expected error for unmatched FAQ message")
	}
}
