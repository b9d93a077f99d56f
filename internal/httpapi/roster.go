package httpapi

import (
	"net/http"

	"fitleague/internal/apperr"
	"fitleague/internal/service"
	"fitleague/internal/store"
)

type createClientRequest struct {
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	AthleteIDPrefix string `json:"athlete_id_prefix"`
}

// userView omits credentials and the password hash
type userView struct {
	ID              int64  `json:"id"`
	ClientID        int64  `json:"client_id"`
	AthleteID       string `json:"athlete_id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	Gender          string `json:"gender"`
	Active          bool   `json:"active"`
	StravaConnected bool   `json:"strava_connected"`
}

func newUserView(u *store.User) userView {
	return userView{
		ID:              u.ID,
		ClientID:        u.ClientID,
		AthleteID:       u.AthleteID,
		Email:           u.Email,
		Name:            u.Name,
		Gender:          u.Gender,
		Active:          u.Active,
		StravaConnected: u.StravaToken != nil,
	}
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	c, err := s.svc.Roster.CreateClient(r.Context(), req.Name, req.Slug, req.AthleteIDPrefix)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	c, err := s.svc.Roster.GetClient(r.Context(), id)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListAthletes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	users, err := s.svc.Roster.ListAthletes(r.Context(), id)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	views := make([]userView, len(users))
	for i := range users {
		views[i] = newUserView(&users[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"athletes": views})
}

func (s *Server) handleCreateAthlete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	var req service.NewAthlete
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	created, err := s.svc.Roster.CreateAthlete(r.Context(), id, req)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"athlete":       newUserView(created.User),
		"temp_password": created.TempPassword,
	})
}

func (s *Server) handleImportAthletes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	var req struct {
		Athletes []service.NewAthlete `json:"athletes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	report, err := s.svc.Roster.ImportAthletes(r.Context(), id, req.Athletes)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	u, err := s.svc.Roster.GetAthlete(r.Context(), id)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	var req struct {
		Name   *string `json:"name"`
		Gender *string `json:"gender"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	u, err := s.svc.Roster.UpdateProfile(r.Context(), id, store.UserUpdate{Name: req.Name, Gender: req.Gender})
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if req.Active == nil {
		apperr.WriteJSON(w, apperr.New(apperr.CodeValidation, "active is required"))
		return
	}

	if err := s.svc.Roster.SetActive(r.Context(), id, *req.Active); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
