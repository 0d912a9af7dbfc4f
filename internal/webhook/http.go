package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// HTTPHandler adapts Handler to net/http, matching the webhook route the
// Evolution API instance is configured to POST message-upsert events to.
// Once the body is read it answers 202 Accepted and processes the event in
// the background.
func HTTPHandler(h *Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{OK: false, Error: "failed to read body"})
			return
		}

		go func() {
			resp := h.HandleMessageUpsert(context.Background(), body)
			if !resp.OK {
				slog.Warn("webhook processing failed", "error", resp.Error, "request_id", resp.RequestID)
			}
		}()
		writeJSON(w, http.StatusAccepted, Response{OK: true, Message: "accepted"})
	})
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
