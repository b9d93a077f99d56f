package httpapi

import (
	"net/http"
	"time"

	"fitleague/internal/apperr"
	"fitleague/internal/service"
	"fitleague/internal/store"
)

// activityRequest is the wire form of a candidate. Dates may be RFC3339 or
// a plain calendar date.
type activityRequest struct {
	Type           string   `json:"type"`
	Date           string   `json:"date"`
	Distance       float64  `json:"distance"` // km
	Duration       int      `json:"duration"` // seconds
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	ProofLink      string   `json:"proof_link"`
	ProofImage     string   `json:"proof_image"`
	ExternalID     string   `json:"external_id"`
	ExternalSource string   `json:"external_source"`
	ElevationGain  *float64 `json:"elevation_gain"`
	AvgHeartRate   *float64 `json:"avg_heart_rate"`
}

func (a activityRequest) candidate() (service.Candidate, error) {
	date, err := parseDate(a.Date)
	if err != nil {
		return service.Candidate{}, err
	}
	c := a.fields()
	c.Date = date
	return c, nil
}

// batchCandidate never fails; a bad date rejects only this item
func (a activityRequest) batchCandidate() service.Candidate {
	c := a.fields()
	date, err := parseDate(a.Date)
	if err != nil {
		c.Malformed = apperr.From(err).Message
		return c
	}
	c.Date = date
	return c
}

func (a activityRequest) fields() service.Candidate {
	return service.Candidate{
		Type:           a.Type,
		Distance:       a.Distance,
		Duration:       a.Duration,
		Title:          a.Title,
		Description:    a.Description,
		ProofLink:      a.ProofLink,
		ProofImage:     a.ProofImage,
		ExternalID:     a.ExternalID,
		ExternalSource: a.ExternalSource,
		ElevationGain:  a.ElevationGain,
		AvgHeartRate:   a.AvgHeartRate,
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Newf(apperr.CodeValidation, "invalid date %q", s)
}

func (s *Server) handleSubmitActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	var req activityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	// Manual entries never carry provider identity
	req.ExternalID, req.ExternalSource = "", ""

	c, err := req.candidate()
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	res, err := s.svc.Ingestor.Admit(r.Context(), userID, c)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if res.Outcome == service.OutcomeRejected {
		apperr.WriteJSON(w, res.Err())
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleImportActivities(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	var req struct {
		Activities []activityRequest `json:"activities"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	candidates := make([]service.Candidate, len(req.Activities))
	for i, a := range req.Activities {
		candidates[i] = a.batchCandidate()
	}

	report, err := s.svc.Ingestor.AdmitBatch(r.Context(), userID, candidates)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	activities, err := s.svc.Ingestor.ListActivities(r.Context(), userID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if activities == nil {
		activities = []store.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": activities})
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	activity, err := s.svc.Ingestor.GetActivity(r.Context(), id)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.Query{Type: q.Get("type"), Gender: q.Get("gender")}

	var err error
	if query.Limit, err = queryInt(r, "limit"); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if query.Offset, err = queryInt(r, "offset"); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	clientID, err := queryInt(r, "client_id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	query.ClientID = int64(clientID)

	entries, err := s.svc.Leaderboard.Rank(r.Context(), query)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
