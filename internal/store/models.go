package store

import "time"

// Client is a tenant organization with its own athlete roster
type Client struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Slug            string    `db:"slug" json:"slug"`
	AthleteIDPrefix string    `db:"athlete_id_prefix" json:"athlete_id_prefix"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// User is an athlete belonging to a client
type User struct {
	ID           int64     `db:"id"`
	ClientID     int64     `db:"client_id"`
	AthleteID    string    `db:"athlete_id"` // human-shareable, e.g. "FITK3Q9ZP"
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	Gender       string    `db:"gender"` // "male", "female", "other"
	PasswordHash string    `db:"password_hash"`
	Active       bool      `db:"active"`
	StravaToken  *string   `db:"strava_token"` // serialized credential envelope, nullable
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Activity is one logged or imported workout
type Activity struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Type           string    `db:"type" json:"type"` // "running", "cycling", "walking"
	Date           time.Time `db:"date" json:"date"`
	Distance       float64   `db:"distance" json:"distance"` // kilometers
	Duration       int       `db:"duration" json:"duration"` // seconds
	Title          string    `db:"title" json:"title"`
	Description    string    `db:"description" json:"description,omitempty"`
	ProofLink      string    `db:"proof_link" json:"proof_link,omitempty"`
	ProofImage     string    `db:"proof_image" json:"proof_image,omitempty"`
	ExternalID     string    `db:"external_id" json:"external_id,omitempty"`         // set only for imports
	ExternalSource string    `db:"external_source" json:"external_source,omitempty"` // e.g. "strava"
	ElevationGain  *float64  `db:"elevation_gain" json:"elevation_gain,omitempty"`   // meters, nullable
	AvgHeartRate   *float64  `db:"avg_heart_rate" json:"avg_heart_rate,omitempty"`   // bpm, nullable
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// UserFilter narrows ListUsers. Zero values disable a filter.
type UserFilter struct {
	ClientID int64
	Gender   string
}

// ActivityFilter narrows ListActivities. Zero values disable a filter.
type ActivityFilter struct {
	ClientID int64
	UserID   int64
	Type     string
}

// InsertOutcome reports what an insert-if-absent did
type InsertOutcome int

const (
	Inserted         InsertOutcome = iota // new row written
	SkippedDuplicate                      // (user_id, external_id) already present
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case SkippedDuplicate:
		return "skipped"
	default:
		return "unknown"
	}
}
