package location

import (
	"math"
	"time"
)

// DegreesPerMeter is a flat-earth approximation used for the short offsets
// (a few hundred meters) the agent works with.
const DegreesPerMeter = 0.00001

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Offset returns the coordinate displaced by the given distances in meters.
// Negative values move south/west.
func (c Coordinate) Offset(northMeters, eastMeters float64) Coordinate {
	return Coordinate{
		Lat: c.Lat + northMeters*DegreesPerMeter,
		Lng: c.Lng + eastMeters*DegreesPerMeter,
	}
}

// Location represents a fix reported by a provider
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Timestamp time.Time
}

// Coordinate returns the fix as a Coordinate.
func (l Location) Coordinate() Coordinate {
	return Coordinate{Lat: l.Latitude, Lng: l.Longitude}
}

// Options mirror the knobs of a platform position request.
type Options struct {
	EnableHighAccuracy bool          `yaml:"enable_high_accuracy"`
	Timeout            time.Duration `yaml:"timeout"`     // Upper bound for a single fix
	MaximumAge         time.Duration `yaml:"maximum_age"` // Oldest cached fix that may be returned
}
