package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newActivity(userID int64, externalID string) *Activity {
	return &Activity{
		UserID:     userID,
		Type:       "running",
		Date:       time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC),
		Distance:   10,
		Duration:   3000,
		Title:      "Morning Run",
		ProofLink:  "https://www.strava.com/activities/" + externalID,
		ExternalID: externalID,
	}
}

func TestInsertActivity_SkipsDuplicateExternalID(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	u := SeedUser(t, db, c.ID, "female")

	first := newActivity(u.ID, "123")
	first.ExternalSource = "strava"
	outcome, err := db.InsertActivity(ctx, first)
	if err != nil {
		t.Fatalf("InsertActivity failed: %v", err)
	}
	if outcome != Inserted {
		t.Errorf("first insert outcome = %v, want inserted", outcome)
	}
	if first.ID == 0 {
		t.Error("expected ID to be set on insert")
	}

	second := newActivity(u.ID, "123")
	outcome, err = db.InsertActivity(ctx, second)
	if err != nil {
		t.Fatalf("InsertActivity failed: %v", err)
	}
	if outcome != SkippedDuplicate {
		t.Errorf("second insert outcome = %v, want skipped", outcome)
	}
	if second.ID != 0 {
		t.Errorf("skipped insert should not set ID, got %d", second.ID)
	}

	count, err := db.CountActivities(ctx)
	if err != nil {
		t.Fatalf("CountActivities failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestInsertActivity_SameExternalIDDifferentUsers(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	a := SeedUser(t, db, c.ID, "male")
	b := SeedUser(t, db, c.ID, "male")

	for _, u := range []*User{a, b} {
		outcome, err := db.InsertActivity(ctx, newActivity(u.ID, "555"))
		if err != nil {
			t.Fatalf("InsertActivity failed: %v", err)
		}
		if outcome != Inserted {
			t.Errorf("user %d outcome = %v, want inserted", u.ID, outcome)
		}
	}
}

func TestInsertActivity_ManualActivitiesNeverConflict(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	u := SeedUser(t, db, c.ID, "female")

	for i := 0; i < 3; i++ {
		outcome, err := db.InsertActivity(ctx, newActivity(u.ID, ""))
		if err != nil {
			t.Fatalf("InsertActivity failed: %v", err)
		}
		if outcome != Inserted {
			t.Errorf("manual insert %d outcome = %v, want inserted", i, outcome)
		}
	}

	activities, err := db.ListActivitiesByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListActivitiesByUser failed: %v", err)
	}
	if len(activities) != 3 {
		t.Errorf("got %d activities, want 3", len(activities))
	}
	if activities[0].ExternalID != "" {
		t.Errorf("ExternalID = %q, want empty", activities[0].ExternalID)
	}
}

func TestGetActivity_RoundTripsOptionalFields(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	u := SeedUser(t, db, c.ID, "female")

	elev := 42.5
	a := newActivity(u.ID, "9")
	a.ElevationGain = &elev
	if _, err := db.InsertActivity(ctx, a); err != nil {
		t.Fatalf("InsertActivity failed: %v", err)
	}

	got, err := db.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	if got.ElevationGain == nil || *got.ElevationGain != 42.5 {
		t.Errorf("ElevationGain = %v, want 42.5", got.ElevationGain)
	}
	if got.AvgHeartRate != nil {
		t.Errorf("AvgHeartRate = %v, want nil", *got.AvgHeartRate)
	}
	if !got.Date.Equal(a.Date) {
		t.Errorf("Date = %v, want %v", got.Date, a.Date)
	}

	if _, err := db.GetActivity(ctx, 9999); !errors.Is(err, ErrActivityNotFound) {
		t.Errorf("GetActivity(missing) error = %v, want ErrActivityNotFound", err)
	}
}

func TestListActivities_Filters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c1 := SeedClient(t, db, "AAA")
	c2 := SeedClient(t, db, "BBB")
	u1 := SeedUser(t, db, c1.ID, "male")
	u2 := SeedUser(t, db, c2.ID, "female")

	run := newActivity(u1.ID, "1")
	ride := newActivity(u1.ID, "2")
	ride.Type = "cycling"
	other := newActivity(u2.ID, "3")
	for _, a := range []*Activity{run, ride, other} {
		if _, err := db.InsertActivity(ctx, a); err != nil {
			t.Fatalf("InsertActivity failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter ActivityFilter
		want   int
	}{
		{"all", ActivityFilter{}, 3},
		{"by client", ActivityFilter{ClientID: c1.ID}, 2},
		{"by type", ActivityFilter{Type: "cycling"}, 1},
		{"by user and type", ActivityFilter{UserID: u2.ID, Type: "running"}, 1},
		{"no match", ActivityFilter{ClientID: c2.ID, Type: "cycling"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListActivities(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListActivities failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d activities, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCreateUser_UniqueEmail(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")

	u := &User{ClientID: c.ID, AthleteID: "FITAAAAAA", Email: "Jo@Example.com", Name: "Jo", Gender: "other", PasswordHash: "h", Active: true}
	if err := db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.Email != "jo@example.com" {
		t.Errorf("Email = %q, want lowercased", u.Email)
	}

	dup := &User{ClientID: c.ID, AthleteID: "FITBBBBBB", Email: "jo@example.com", Name: "Jo 2", Gender: "other", PasswordHash: "h"}
	if err := db.CreateUser(ctx, dup); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email error = %v, want ErrEmailTaken", err)
	}

	clash := &User{ClientID: c.ID, AthleteID: "FITAAAAAA", Email: "other@example.com", Name: "Other", Gender: "other", PasswordHash: "h"}
	if err := db.CreateUser(ctx, clash); !errors.Is(err, ErrAthleteIDTaken) {
		t.Errorf("duplicate athlete id error = %v, want ErrAthleteIDTaken", err)
	}

	found, err := db.GetUserByEmail(ctx, "JO@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if found.ID != u.ID {
		t.Errorf("GetUserByEmail ID = %d, want %d", found.ID, u.ID)
	}
}

func TestUpdateUser_Partial(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	u := SeedUser(t, db, c.ID, "male")

	name := "Renamed"
	if err := db.UpdateUser(ctx, u.ID, UserUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if err := db.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetUserActive failed: %v", err)
	}

	got, err := db.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Name != "Renamed" || got.Gender != "male" || got.Active {
		t.Errorf("got name=%q gender=%q active=%v", got.Name, got.Gender, got.Active)
	}

	if err := db.SetUserActive(ctx, 9999, true); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetUserActive(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUpdateStravaToken_CompareAndSwap(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	u := SeedUser(t, db, c.ID, "female")

	if err := db.UpdateStravaToken(ctx, u.ID, nil, `{"v":1}`, 777); err != nil {
		t.Fatalf("initial UpdateStravaToken failed: %v", err)
	}

	// A writer still expecting "no envelope" loses.
	if err := db.UpdateStravaToken(ctx, u.ID, nil, `{"v":2}`, 777); !errors.Is(err, ErrTokenConflict) {
		t.Errorf("stale writer error = %v, want ErrTokenConflict", err)
	}

	current := `{"v":1}`
	if err := db.UpdateStravaToken(ctx, u.ID, &current, `{"v":3}`, 777); err != nil {
		t.Fatalf("CAS update failed: %v", err)
	}

	got, err := db.GetUserByProviderAthleteID(ctx, 777)
	if err != nil {
		t.Fatalf("GetUserByProviderAthleteID failed: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("resolved user %d, want %d", got.ID, u.ID)
	}
	if got.StravaToken == nil || *got.StravaToken != `{"v":3}` {
		t.Errorf("StravaToken = %v, want v3 envelope", got.StravaToken)
	}

	if err := db.UpdateStravaToken(ctx, 9999, nil, `{}`, 0); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing user error = %v, want ErrUserNotFound", err)
	}
}

func TestUpdateStravaToken_AthleteLinkedElsewhere(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	a := SeedUser(t, db, c.ID, "male")
	b := SeedUser(t, db, c.ID, "male")

	if err := db.UpdateStravaToken(ctx, a.ID, nil, `{"a":1}`, 42); err != nil {
		t.Fatalf("UpdateStravaToken failed: %v", err)
	}
	if err := db.UpdateStravaToken(ctx, b.ID, nil, `{"b":1}`, 42); !errors.Is(err, ErrAthleteLinked) {
		t.Fatalf("second link error = %v, want ErrAthleteLinked", err)
	}

	got, err := db.GetUser(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.StravaToken != nil {
		t.Errorf("rejected link must not store an envelope, got %q", *got.StravaToken)
	}
}

func TestUpdateStravaToken_RelinkReplacesIndex(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	u := SeedUser(t, db, c.ID, "male")

	if err := db.UpdateStravaToken(ctx, u.ID, nil, `{"n":1}`, 1); err != nil {
		t.Fatalf("UpdateStravaToken failed: %v", err)
	}
	prev := `{"n":1}`
	if err := db.UpdateStravaToken(ctx, u.ID, &prev, `{"n":2}`, 2); err != nil {
		t.Fatalf("relink failed: %v", err)
	}

	if _, err := db.GetUserByProviderAthleteID(ctx, 1); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("old link lookup error = %v, want ErrUserNotFound", err)
	}
	if _, err := db.GetUserByProviderAthleteID(ctx, 2); err != nil {
		t.Errorf("new link lookup failed: %v", err)
	}
}

func TestClearStravaToken(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	u := SeedUser(t, db, c.ID, "female")

	if err := db.UpdateStravaToken(ctx, u.ID, nil, `{"x":1}`, 99); err != nil {
		t.Fatalf("UpdateStravaToken failed: %v", err)
	}
	if err := db.ClearStravaToken(ctx, u.ID); err != nil {
		t.Fatalf("ClearStravaToken failed: %v", err)
	}

	users, err := db.ListUsersWithStravaToken(ctx)
	if err != nil {
		t.Fatalf("ListUsersWithStravaToken failed: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("got %d connected users, want 0", len(users))
	}
	if _, err := db.GetUserByProviderAthleteID(ctx, 99); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("lookup after clear error = %v, want ErrUserNotFound", err)
	}
}

func TestLinkProviderAthlete_KeepsExisting(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	c := SeedClient(t, db, "FIT")
	a := SeedUser(t, db, c.ID, "male")
	b := SeedUser(t, db, c.ID, "male")

	if err := db.LinkProviderAthlete(ctx, 5, a.ID); err != nil {
		t.Fatalf("LinkProviderAthlete failed: %v", err)
	}
	if err := db.LinkProviderAthlete(ctx, 5, b.ID); err != nil {
		t.Fatalf("second LinkProviderAthlete failed: %v", err)
	}

	got, err := db.GetUserByProviderAthleteID(ctx, 5)
	if err != nil {
		t.Fatalf("GetUserByProviderAthleteID failed: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("resolved user %d, want first linker %d", got.ID, a.ID)
	}
}

func TestSyncState(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	v, err := db.GetSyncState(ctx, "missing")
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if v != "" {
		t.Errorf("missing key = %q, want empty", v)
	}

	if err := db.SetSyncState(ctx, SyncKeySubscription, "1"); err != nil {
		t.Fatalf("SetSyncState failed: %v", err)
	}
	if err := db.SetSyncState(ctx, SyncKeySubscription, "2"); err != nil {
		t.Fatalf("SetSyncState overwrite failed: %v", err)
	}
	if v, _ := db.GetSyncState(ctx, SyncKeySubscription); v != "2" {
		t.Errorf("value = %q, want 2", v)
	}
	if err := db.DeleteSyncState(ctx, SyncKeySubscription); err != nil {
		t.Fatalf("DeleteSyncState failed: %v", err)
	}

	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := db.SetLastSync(ctx, 7, last); err != nil {
		t.Fatalf("SetLastSync failed: %v", err)
	}
	got, err := db.GetLastSync(ctx, 7)
	if err != nil {
		t.Fatalf("GetLastSync failed: %v", err)
	}
	if !got.Equal(last) {
		t.Errorf("last sync = %v, want %v", got, last)
	}
	if zero, _ := db.GetLastSync(ctx, 8); !zero.IsZero() {
		t.Errorf("unset last sync = %v, want zero", zero)
	}
}
