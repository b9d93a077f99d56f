// Package httpapi exposes the league services over JSON/HTTP.
package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"fitleague/internal/auth"
	"fitleague/internal/metrics"
	"fitleague/internal/service"
	"fitleague/internal/store"
)

// Services are the dependencies of the HTTP layer. The Strava fields are
// nil when the integration is not configured, and their routes are not
// registered.
type Services struct {
	DB          *store.DB
	Roster      *service.Roster
	Ingestor    *service.Ingestor
	Leaderboard *service.Leaderboard

	OAuth         *auth.Manager
	State         *auth.StateSigner
	Credentials   *service.Credentials
	Sync          *service.SyncService
	Webhooks      *service.WebhookProcessor
	Subscriptions *service.Subscriptions
}

func (s Services) stravaEnabled() bool {
	return s.OAuth != nil && s.State != nil && s.Credentials != nil && s.Sync != nil
}

// Server routes requests to the services
type Server struct {
	svc     Services
	metrics *metrics.Metrics
	log     *zap.Logger
	mux     *http.ServeMux
}

// New creates a Server and registers its routes
func New(svc Services, m *metrics.Metrics, log *zap.Logger) *Server {
	s := &Server{svc: svc, metrics: m, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return recoverer(s.log, s.metrics.Middleware(requestLogger(s.log, s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.HandleFunc("POST /clients", s.handleCreateClient)
	s.mux.HandleFunc("GET /clients/{id}", s.handleGetClient)
	s.mux.HandleFunc("GET /clients/{id}/athletes", s.handleListAthletes)
	s.mux.HandleFunc("POST /clients/{id}/athletes", s.handleCreateAthlete)
	s.mux.HandleFunc("POST /clients/{id}/athletes/import", s.handleImportAthletes)

	s.mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	s.mux.HandleFunc("PATCH /users/{id}", s.handleUpdateUser)
	s.mux.HandleFunc("PUT /users/{id}/active", s.handleSetActive)

	s.mux.HandleFunc("GET /users/{id}/activities", s.handleListActivities)
	s.mux.HandleFunc("POST /users/{id}/activities", s.handleSubmitActivity)
	s.mux.HandleFunc("POST /users/{id}/activities/import", s.handleImportActivities)
	s.mux.HandleFunc("GET /activities/{id}", s.handleGetActivity)

	s.mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)

	if s.svc.stravaEnabled() {
		s.mux.HandleFunc("GET /users/{id}/strava", s.handleStravaStatus)
		s.mux.HandleFunc("GET /users/{id}/strava/connect", s.handleStravaConnect)
		s.mux.HandleFunc("GET /strava/callback", s.handleStravaCallback)
		s.mux.HandleFunc("POST /users/{id}/strava/sync", s.handleStravaSync)
		s.mux.HandleFunc("DELETE /users/{id}/strava", s.handleStravaDisconnect)
	}
	if s.svc.Webhooks != nil && s.svc.Subscriptions != nil {
		s.mux.HandleFunc("GET /webhooks/strava", s.handleWebhookVerify)
		s.mux.HandleFunc("POST /webhooks/strava", s.handleWebhookEvent)
		s.mux.HandleFunc("GET /webhooks/strava/subscription", s.handleWebhookSubscription)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DB.PingContext(r.Context()); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	count, err := s.svc.DB.CountActivities(r.Context())
	if err != nil {
		s.log.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "activities": count})
}
