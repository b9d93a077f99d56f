package service

const (
	// Canonical activity types
	TypeRunning = "running"
	TypeCycling = "cycling"
	TypeWalking = "walking"

	// Proof is required at or above this distance (km)
	ProofRequiredKm = 10.0

	// ExternalSourceStrava tags imported activities
	ExternalSourceStrava = "strava"

	// Leaderboard pagination
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100

	// Athlete ids are PREFIX + AthleteIDSuffixLen characters of athleteIDAlphabet
	AthleteIDSuffixLen   = 6
	MaxAthleteIDAttempts = 5
	TempPasswordLength   = 12

	// Credential compare-and-swap attempts before giving up
	MaxTokenWriteAttempts = 3

	// Filter value that disables a leaderboard filter
	FilterAll = "all"
)

const (
	athleteIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordAlphabet  = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Genders accepted on athlete profiles
var Genders = []string{"male", "female", "other"}

// activityTypeAliases maps every accepted spelling (manual forms and Strava
// sport types) to the canonical vocabulary
var activityTypeAliases = map[string]string{
	"run":              TypeRunning,
	"running":          TypeRunning,
	"trailrun":         TypeRunning,
	"virtualrun":       TypeRunning,
	"ride":             TypeCycling,
	"cycling":          TypeCycling,
	"virtualride":      TypeCycling,
	"gravelride":       TypeCycling,
	"mountainbikeride": TypeCycling,
	"ebikeride":        TypeCycling,
	"walk":             TypeWalking,
	"walking":          TypeWalking,
	"hike":             TypeWalking,
}
