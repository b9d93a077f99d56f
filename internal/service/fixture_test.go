package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fitleague/internal/auth"
	"fitleague/internal/metrics"
	"fitleague/internal/store"
	"fitleague/internal/strava"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeStrava serves the token endpoint and the parts of the API we call
type fakeStrava struct {
	srv *httptest.Server

	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32
	refreshDelay  time.Duration
	tokenStatus   int

	mu             sync.Mutex
	activities     []strava.Activity
	activityStatus int
	subs           []strava.Subscription
	deletedSubs    []int64
	nextSubID      int64
}

func newFakeStrava(t *testing.T) *fakeStrava {
	t.Helper()
	f := &fakeStrava{tokenStatus: http.StatusOK, nextSubID: 100}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", f.token)
	mux.HandleFunc("GET /api/v3/activities/{id}", f.activity)
	mux.HandleFunc("GET /api/v3/athlete/activities", f.athleteActivities)
	mux.HandleFunc("GET /api/v3/push_subscriptions", f.listSubs)
	mux.HandleFunc("POST /api/v3/push_subscriptions", f.createSub)
	mux.HandleFunc("DELETE /api/v3/push_subscriptions/{id}", f.deleteSub)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStrava) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if f.tokenStatus != http.StatusOK {
		w.WriteHeader(f.tokenStatus)
		w.Write([]byte(`{"message":"Bad Request"}`))
		return
	}

	body := map[string]any{
		"token_type": "Bearer",
		"expires_at": fixedNow.Add(6 * time.Hour).Unix(),
		"expires_in": 21600,
	}
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.exchangeCalls.Add(1)
		// codes look like "code-<athlete id>"
		athleteID, _ := strconv.ParseInt(strings.TrimPrefix(r.PostForm.Get("code"), "code-"), 10, 64)
		body["access_token"] = "access-exchanged"
		body["refresh_token"] = "refresh-exchanged"
		body["athlete"] = map[string]any{"id": athleteID, "firstname": "Test"}
	case "refresh_token":
		n := f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)
		body["access_token"] = fmt.Sprintf("access-refreshed-%d", n)
		body["refresh_token"] = fmt.Sprintf("refresh-%d", n)
	default:
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"unsupported grant"}`))
		return
	}
	json.NewEncoder(w).Encode(body)
}

func (f *fakeStrava) activity(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.activityStatus != 0 {
		w.WriteHeader(f.activityStatus)
		return
	}
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for _, a := range f.activities {
		if a.ID == id {
			json.NewEncoder(w).Encode(a)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message":"Record Not Found"}`))
}

func (f *fakeStrava) athleteActivities(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	var matched []strava.Activity
	for _, a := range f.activities {
		if a.StartDate.Unix() > after {
			matched = append(matched, a)
		}
	}
	start := min((page-1)*perPage, len(matched))
	end := min(start+perPage, len(matched))
	json.NewEncoder(w).Encode(matched[start:end])
}

func (f *fakeStrava) listSubs(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	json.NewEncoder(w).Encode(append([]strava.Subscription{}, f.subs...))
}

func (f *fakeStrava) createSub(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSubID++
	sub := strava.Subscription{ID: f.nextSubID, ApplicationID: 1, CallbackURL: r.FormValue("callback_url")}
	f.subs = append(f.subs, sub)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"id": sub.ID})
}

func (f *fakeStrava) deleteSub(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletedSubs = append(f.deletedSubs, id)
	f.subs = slices.DeleteFunc(f.subs, func(s strava.Subscription) bool { return s.ID == id })
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeStrava) addActivity(a strava.Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, a)
}

// fixture wires every service against one test database and fake Strava
type fixture struct {
	db          *store.DB
	fake        *fakeStrava
	metrics     *metrics.Metrics
	client      *strava.Client
	ingestor    *Ingestor
	resolver    *IdentityResolver
	credentials *Credentials
	processor   *WebhookProcessor
	sync        *SyncService
	client0     *store.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := store.NewTestDB(t)
	fake := newFakeStrava(t)
	m := metrics.New()
	log := zap.NewNop()

	manager := auth.NewManager(auth.Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "https://league.example.com/strava/callback",
		TokenURL:     fake.srv.URL + "/oauth/token",
	}, auth.WithHTTPClient(fake.srv.Client()), auth.WithClock(func() time.Time { return fixedNow }))

	client := strava.NewClient(
		strava.WithBaseURL(fake.srv.URL+"/api/v3"),
		strava.WithHTTPClient(fake.srv.Client()),
		strava.WithRateLimiter(strava.NewRateLimiterWithInterval(0)),
	)

	ingestor := NewIngestor(db, m, log)
	resolver := NewIdentityResolver(db, log)
	credentials := NewCredentials(db, manager, m, log)
	processor := NewWebhookProcessor(resolver, credentials, client, ingestor, m, log,
		WebhookOptions{Workers: 2, QueueSize: 8, EventTimeout: 5 * time.Second})
	syncSvc := NewSyncService(db, client, credentials, ingestor, log)
	syncSvc.now = func() time.Time { return fixedNow }

	return &fixture{
		db:          db,
		fake:        fake,
		metrics:     m,
		client:      client,
		ingestor:    ingestor,
		resolver:    resolver,
		credentials: credentials,
		processor:   processor,
		sync:        syncSvc,
		client0:     store.SeedClient(t, db, "FIT"),
	}
}

func (f *fixture) user(t *testing.T, gender string) *store.User {
	t.Helper()
	return store.SeedUser(t, f.db, f.client0.ID, gender)
}

// connect stores an envelope for u directly, bypassing the code exchange
func (f *fixture) connect(t *testing.T, u *store.User, athleteID int64, expiresAt time.Time) *auth.Envelope {
	t.Helper()
	env := &auth.Envelope{
		AccessToken:  "access-stored",
		RefreshToken: "refresh-stored",
		ExpiresAt:    expiresAt.Unix(),
		Athlete:      auth.EnvelopeAthlete{ID: athleteID},
	}
	raw, err := env.Marshal()
	require.NoError(t, err)
	require.NoError(t, f.db.UpdateStravaToken(context.Background(), u.ID, nil, raw, athleteID))
	return env
}

func stravaRun(id int64, km float64, seconds int) strava.Activity {
	return strava.Activity{
		ID:          id,
		Name:        fmt.Sprintf("Run %d", id),
		Type:        "Run",
		SportType:   "Run",
		StartDate:   fixedNow.Add(-time.Duration(id) * time.Hour),
		Distance:    km * 1000,
		MovingTime:  seconds,
		ElapsedTime: seconds + 60,
	}
}

func createEvent(activityID, ownerID int64) strava.WebhookEvent {
	return strava.WebhookEvent{
		AspectType: strava.AspectTypeCreate,
		ObjectType: strava.ObjectTypeActivity,
		ObjectID:   activityID,
		OwnerID:    ownerID,
		EventTime:  fixedNow.Unix(),
	}
}

// counterValue reads a counter from the registry. An empty label matches an
// unlabeled counter.
func counterValue(t *testing.T, m *metrics.Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := metric.GetLabel()
			if (label == "" && len(labels) == 0) || (len(labels) > 0 && labels[0].GetValue() == label) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
