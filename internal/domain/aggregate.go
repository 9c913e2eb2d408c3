package domain

import (
	"fmt"
	"math"
	"time"
)

// ActivityTypeRun is the only provider activity type that counts toward the
// leaderboard. The match is case-sensitive: "run" or "Ride" never qualify.
const ActivityTypeRun = "Run"

const metersPerMile = 1609.34

// Activity is a single recorded exercise session as returned by the
// provider's activity listing endpoint.
type Activity struct {
	Type       string    `json:"type"`
	Distance   float64   `json:"distance"`    // meters
	MovingTime float64   `json:"moving_time"` // seconds
	StartDate  time.Time `json:"start_date"`
}

// WeeklyTotals is the reduced result for one participant in one week.
type WeeklyTotals struct {
	Mileage    float64
	MovingTime float64
	NumRuns    int
}

// Aggregate reduces a window of provider activities to weekly totals.
// Only runs count; distance is summed in meters first and converted to
// miles once, rounded to two decimals at the end. Pure and deterministic.
func Aggregate(activities []Activity) WeeklyTotals {
	var totals WeeklyTotals
	var meters float64
	for _, a := range activities {
		if a.Type != ActivityTypeRun {
			continue
		}
		meters += a.Distance
		totals.MovingTime += a.MovingTime
		totals.NumRuns++
	}
	totals.Mileage = math.Round(meters/metersPerMile*100) / 100
	return totals
}

// Pace returns the average pace in minutes per mile formatted "m:ss".
// It is undefined (second return false) unless both mileage and moving
// time are positive.
func (t WeeklyTotals) Pace() (string, bool) {
	if t.Mileage <= 0 || t.MovingTime <= 0 {
		return "", false
	}
	return FormatPace((t.MovingTime / 60) / t.Mileage), true
}

// FormatPace renders minutes-per-mile as "m:ss".
func FormatPace(minPerMile float64) string {
	min := int(math.Floor(minPerMile))
	sec := int(math.Round((minPerMile - float64(min)) * 60))
	if sec == 60 {
		min++
		sec = 0
	}
	return fmt.Sprintf("%d:%02d", min, sec)
}
