package strava

import (
	"fmt"
	"time"
)

// Webhook event vocabulary
const (
	ObjectTypeActivity = "activity"
	ObjectTypeAthlete  = "athlete"

	AspectTypeCreate = "create"
	AspectTypeUpdate = "update"
	AspectTypeDelete = "delete"
)

// ActivityURL is the public page for an activity
func ActivityURL(id int64) string {
	return fmt.Sprintf("https://www.strava.com/activities/%d", id)
}

// Activity represents a Strava activity from the API
type Activity struct {
	ID                 int64     `json:"id"`
	Athlete            Athlete   `json:"athlete"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	Distance           float64   `json:"distance"`             // meters
	MovingTime         int       `json:"moving_time"`          // seconds
	ElapsedTime        int       `json:"elapsed_time"`         // seconds
	TotalElevationGain float64   `json:"total_elevation_gain"` // meters
	AverageHeartrate   float64   `json:"average_heartrate"`    // bpm
	HasHeartrate       bool      `json:"has_heartrate"`
}

// DistanceKm returns the distance in kilometers
func (a *Activity) DistanceKm() float64 {
	return a.Distance / 1000
}

// Athlete represents a Strava athlete (minimal info in activity and token
// responses)
type Athlete struct {
	ID        int64  `json:"id"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

// WebhookEvent is the body Strava POSTs to the subscription callback
type WebhookEvent struct {
	AspectType     string            `json:"aspect_type"`
	ObjectType     string            `json:"object_type"`
	ObjectID       int64             `json:"object_id"`
	OwnerID        int64             `json:"owner_id"`
	SubscriptionID int64             `json:"subscription_id"`
	EventTime      int64             `json:"event_time"`
	Updates        map[string]string `json:"updates"`
}

// Subscription is a registered push subscription
type Subscription struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	CallbackURL   string    `json:"callback_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
