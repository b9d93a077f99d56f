package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"fitleague/internal/apperr"
)

func (s *Server) handleStravaStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	connected, athleteID, err := s.svc.Credentials.Status(r.Context(), userID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected":         connected,
		"strava_athlete_id": athleteID,
	})
}

// handleStravaConnect returns the consent URL. The state parameter binds
// the callback to this user.
func (s *Server) handleStravaConnect(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if _, err := s.svc.Roster.GetAthlete(r.Context(), userID); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	state, err := s.svc.State.Sign(userID)
	if err != nil {
		apperr.WriteJSON(w, apperr.Wrap(err, apperr.CodeInternal, "signing state"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorize_url": s.svc.OAuth.AuthorizeURL(state)})
}

func (s *Server) handleStravaCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		apperr.WriteJSON(w, apperr.New(apperr.CodeValidation, "strava authorization was not granted").WithDetails(denied))
		return
	}

	userID, err := s.svc.State.Verify(q.Get("state"))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	env, err := s.svc.Credentials.Connect(r.Context(), userID, q.Get("code"))
	if err != nil {
		s.log.Warn("strava connect failed", zap.Int64("user_id", userID), zap.Error(err))
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected":         true,
		"user_id":           userID,
		"strava_athlete_id": env.Athlete.ID,
	})
}

func (s *Server) handleStravaSync(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	report, err := s.svc.Sync.SyncUser(r.Context(), userID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStravaDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	if err := s.svc.Credentials.Disconnect(r.Context(), userID); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
