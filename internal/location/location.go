package location

import (
	"context"
	"errors"
	"math"
	"time"
)

// Fix is one location sample reported by the positioning subsystem.
// Accuracy and FixedAt are optional: zero values mean "unknown".
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
	FixedAt   time.Time `json:"fixed_at,omitempty"`
}

// Valid reports whether the fix carries plausible coordinates.
func (f Fix) Valid() bool {
	if math.IsNaN(f.Latitude) || math.IsNaN(f.Longitude) {
		return false
	}
	return f.Latitude >= -90 && f.Latitude <= 90 && f.Longitude >= -180 && f.Longitude <= 180
}

// Age returns the fix age relative to now, or -1 when the capture time is unknown.
func (f Fix) Age(now time.Time) time.Duration {
	if f.FixedAt.IsZero() {
		return -1
	}
	return now.Sub(f.FixedAt)
}

// Provider supplies the current device position on demand.
type Provider interface {
	CurrentFix(ctx context.Context) (Fix, error)
}

// ErrNoFix indicates the provider has no position available.
var ErrNoFix = errors.New("location: no fix available")

const earthRadiusM = 6371000.0

// DistanceM computes the great-circle distance in meters between two
// coordinates using the haversine formula.
func DistanceM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
