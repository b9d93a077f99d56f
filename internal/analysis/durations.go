package analysis

import (
	"fmt"
	"math"
	"strconv"
)

// DistanceTolerance is how far (km) a submission may sit from a race
// distance and still be held to its duration bounds
const DistanceTolerance = 0.5

// DurationBounds is the plausible duration window for one race distance
type DurationBounds struct {
	DistanceKm float64
	MinSeconds int
	MaxSeconds int
}

// RaceDistances holds the canonical distances in match priority order.
// Bounds span elite to casual pace.
var RaceDistances = []DurationBounds{
	{DistanceKm: 1, MinSeconds: 180, MaxSeconds: 900},
	{DistanceKm: 2, MinSeconds: 360, MaxSeconds: 1800},
	{DistanceKm: 5, MinSeconds: 900, MaxSeconds: 3600},
	{DistanceKm: 10, MinSeconds: 2100, MaxSeconds: 7200},
	{DistanceKm: 15, MinSeconds: 3300, MaxSeconds: 10800},
	{DistanceKm: 21.1, MinSeconds: 4500, MaxSeconds: 14400},
	{DistanceKm: 42.2, MinSeconds: 10800, MaxSeconds: 24000},
}

// ValidationResult is the outcome of a duration check. Message is empty when
// Valid is true.
type ValidationResult struct {
	Valid   bool
	Message string
	Matched *DurationBounds // nil for non-standard distances
}

// NearestRaceDistance returns the canonical distance closest to distanceKm.
// Ties go to the earlier table entry.
func NearestRaceDistance(distanceKm float64) DurationBounds {
	best := RaceDistances[0]
	bestDiff := math.Abs(distanceKm - best.DistanceKm)
	for _, b := range RaceDistances[1:] {
		if diff := math.Abs(distanceKm - b.DistanceKm); diff < bestDiff {
			best, bestDiff = b, diff
		}
	}
	return best
}

// ValidateDuration checks that durationSeconds is plausible for distanceKm.
// Distances further than DistanceTolerance from every race distance are not
// constrained.
func ValidateDuration(distanceKm float64, durationSeconds int) ValidationResult {
	nearest := NearestRaceDistance(distanceKm)
	if math.Abs(distanceKm-nearest.DistanceKm) > DistanceTolerance {
		return ValidationResult{Valid: true}
	}

	if durationSeconds >= nearest.MinSeconds && durationSeconds <= nearest.MaxSeconds {
		return ValidationResult{Valid: true, Matched: &nearest}
	}

	return ValidationResult{
		Valid:   false,
		Message: nearest.Message(),
		Matched: &nearest,
	}
}

// Label renders the distance the way athletes read it, e.g. "21.1KM"
func (b DurationBounds) Label() string {
	return strconv.FormatFloat(b.DistanceKm, 'f', -1, 64) + "KM"
}

// Message is the rejection text for durations outside the bounds
func (b DurationBounds) Message() string {
	return fmt.Sprintf("For %s, duration must be between %s-%s minutes",
		b.Label(), formatMinutes(b.MinSeconds), formatMinutes(b.MaxSeconds))
}

func formatMinutes(seconds int) string {
	return strconv.FormatFloat(float64(seconds)/60, 'f', -1, 64)
}
