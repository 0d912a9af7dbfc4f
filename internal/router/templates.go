package router

import (
	"bytes"
	"fmt"
	"text/template"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var priceTemplate = template.Must(template.New("price").Parse(
	"{{.Name}} costs {{.Price}}.",
))

var serviceInfoTemplate = template.Must(template.New("service_info").Parse(
	"{{.Name}} takes about {{.DurationMin}} minutes. {{.Description}}",
))

// faqAnswers is a locale-keyed static answer table. A real deployment
// loads this from clinic data; these are the compiled-in fallbacks.
var faqAnswers = map[string]map[string]string{
	"en": {
		"address": "Please check our profile for the clinic address.",
		"hours":   "We are open according to the hours listed on our profile.",
	},
	"ru": {
		"адрес":            "Пожалуйста, уточните адрес в профиле клиники.",
		"время работы":     "Мы работаем по расписанию, указанному в профиле клиники.",
	},
}

// RenderPrice formats a PRICE-lane answer using clinic-locale currency
// formatting. Falls back to COMPLEX (returns an error) if the service is
// unknown or the template/currency data is malformed.
func RenderPrice(clinic ClinicData, serviceID string) (string, error) {
	svc, ok := clinic.Service(serviceID)
	if !ok {
		return "", fmt.Errorf("router: unknown service %q", serviceID)
	}

	amount, err := currency.NewAmount(fmt.Sprintf("%.2f", float64(svc.PriceCents)/100), svc.Currency)
	if err != nil {
		return "", fmt.Errorf("router: invalid currency %q: %w", svc.Currency, err)
	}

	tag, err := language.Parse(clinic.Locale())
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)
	formatted := printer.Sprint(currency.Symbol(amount))

	var buf bytes.Buffer
	if err := priceTemplate.Execute(&buf, struct {
		Name  string
		Price string
	}{Name: svc.Name, Price: formatted}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderServiceInfo formats a SERVICE_INFO-lane answer.
func RenderServiceInfo(clinic ClinicData, serviceID string) (string, error) {
	svc, ok := clinic.Service(serviceID)
	if !ok {
		return "", fmt.Errorf("router: unknown service %q", serviceID)
	}
	var buf bytes.Buffer
	if err := serviceInfoTemplate.Execute(&buf, svc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderFAQ looks up a static locale-keyed answer for message. Falls back
// to COMPLEX (returns an error) when nothing matches.
func RenderFAQ(msg, lang string) (string, error) {
	table, ok := faqAnswers[lang]
	if !ok {
		table = faqAnswers["en"]
	}
	for key, answer := range table {
		if containsAny(msg, []string{key}) {
			return answer, nil
		}
	}
	return "", fmt.Errorf("router: no FAQ answer matched")
}
