package service

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"fitleague/internal/apperr"
	"fitleague/internal/store"
)

// Query selects and pages a leaderboard. Empty or "all" Type and Gender
// disable those filters; a zero ClientID spans every tenant.
type Query struct {
	Type     string
	Gender   string
	ClientID int64
	Limit    int
	Offset   int
}

// Entry is one ranked athlete
type Entry struct {
	Rank          int     `json:"rank"`
	UserID        int64   `json:"user_id"`
	AthleteID     string  `json:"athlete_id"`
	Name          string  `json:"name"`
	Gender        string  `json:"gender"`
	TotalDistance float64 `json:"total_distance"` // km
	TotalDuration int     `json:"total_duration"` // seconds
	ActivityCount int     `json:"activity_count"`
}

// Leaderboard ranks athletes by total distance
type Leaderboard struct {
	db *store.DB
}

// NewLeaderboard creates a Leaderboard
func NewLeaderboard(db *store.DB) *Leaderboard {
	return &Leaderboard{db: db}
}

// Rank aggregates matching activities per user, drops users without any,
// orders by total distance descending with user id breaking ties, then
// applies offset and limit. Ranks are positions in the full ordering.
func (l *Leaderboard) Rank(ctx context.Context, q Query) ([]Entry, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	users, err := l.db.ListUsers(ctx, store.UserFilter{ClientID: q.ClientID, Gender: q.Gender})
	if err != nil {
		return nil, storeErr(err)
	}
	byID := make(map[int64]*store.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	activities, err := l.db.ListActivities(ctx, store.ActivityFilter{ClientID: q.ClientID, Type: q.Type})
	if err != nil {
		return nil, storeErr(err)
	}

	totals := make(map[int64]*Entry)
	for _, a := range activities {
		u, ok := byID[a.UserID]
		if !ok {
			continue
		}
		e, ok := totals[a.UserID]
		if !ok {
			e = &Entry{UserID: u.ID, AthleteID: u.AthleteID, Name: u.Name, Gender: u.Gender}
			totals[a.UserID] = e
		}
		e.TotalDistance += a.Distance
		e.TotalDuration += a.Duration
		e.ActivityCount++
	}

	entries := make([]Entry, 0, len(totals))
	for _, e := range totals {
		entries = append(entries, *e)
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.TotalDistance, a.TotalDistance); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	if q.Offset >= len(entries) {
		return []Entry{}, nil
	}
	entries = entries[q.Offset:]
	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return entries, nil
}

func normalizeQuery(q Query) (Query, error) {
	switch t := strings.TrimSpace(q.Type); {
	case t == "" || strings.EqualFold(t, FilterAll):
		q.Type = ""
	default:
		canonical, ok := NormalizeActivityType(t)
		if !ok {
			return q, apperr.Newf(apperr.CodeValidation, "unknown activity type %q", q.Type)
		}
		q.Type = canonical
	}

	switch g := strings.ToLower(strings.TrimSpace(q.Gender)); {
	case g == "" || g == FilterAll:
		q.Gender = ""
	case slices.Contains(Genders, g):
		q.Gender = g
	default:
		return q, apperr.Newf(apperr.CodeValidation, "unknown gender %q", q.Gender)
	}

	if q.Limit <= 0 {
		q.Limit = DefaultLeaderboardLimit
	}
	q.Limit = min(q.Limit, MaxLeaderboardLimit)
	q.Offset = max(q.Offset, 0)
	return q, nil
}
