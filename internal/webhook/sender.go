package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// EvolutionSender posts outbound replies to an Evolution API instance's
// sendText endpoint, the transport the original webhook's
// send_whatsapp_message helper used.
type EvolutionSender struct {
	baseURL string
	client  *http.Client
}

// NewEvolutionSender builds a Sender against the given Evolution API base
// URL (e.g. "https://evolution-api-prod.fly.dev").
func NewEvolutionSender(baseURL string) *EvolutionSender {
	return &EvolutionSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type sendTextPayload struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// Send posts text to toNumber through instanceName's sendText endpoint.
func (s *EvolutionSender) Send(ctx context.Context, instanceName, toNumber, text string) error {
	body, err := json.Marshal(sendTextPayload{Number: phoneFromJID(toNumber), Text: text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/message/sendText/%s", s.baseURL, instanceName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("evolution api: unexpected status %d", resp.StatusCode)
	}
	return nil
}
