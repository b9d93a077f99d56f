package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"fitleague/internal/apperr"
	"fitleague/internal/strava"
)

// handleWebhookVerify answers the subscription handshake
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || !s.svc.Subscriptions.VerifyToken(q.Get("hub.verify_token")) {
		s.log.Warn("webhook verification rejected", zap.String("mode", q.Get("hub.mode")))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": q.Get("hub.challenge")})
}

// handleWebhookEvent always acknowledges. Processing happens on the worker
// pool so the provider never waits on our upstream calls.
func (s *Server) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	var event strava.WebhookEvent
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&event)
	w.WriteHeader(http.StatusOK)

	if err != nil {
		s.log.Warn("ignoring malformed webhook body", zap.Error(err))
		return
	}
	s.svc.Webhooks.Enqueue(event)
}

// handleWebhookSubscription reports the subscription recorded at startup.
// subscription is null until one has been registered.
func (s *Server) handleWebhookSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.Subscriptions.Current(r.Context())
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": sub})
}
