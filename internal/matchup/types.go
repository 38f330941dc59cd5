// Package matchup locates satellite ocean-color pixels that fall
// within a time and distance tolerance of track waypoints.
package matchup

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrConfiguration reports an invalid search request. It is the only
// error class that aborts a whole search; everything else is recorded
// per granule and the search continues.
var ErrConfiguration = errors.New("invalid matchup configuration")

// Waypoint is a single track position.
type Waypoint struct {
	Time time.Time
	Lat  float64
	Lon  float64
}

// Validate checks the waypoint's coordinates and timestamp.
func (w Waypoint) Validate() error {
	if w.Time.IsZero() {
		return fmt.Errorf("%w: waypoint has no time", ErrConfiguration)
	}
	if w.Lat < -90 || w.Lat > 90 {
		return fmt.Errorf("%w: latitude %g out of range [-90,90]", ErrConfiguration, w.Lat)
	}
	if w.Lon < -180 || w.Lon > 180 {
		return fmt.Errorf("%w: longitude %g out of range [-180,180]", ErrConfiguration, w.Lon)
	}
	return nil
}

// Track is an ordered sequence of waypoints. Order is preserved in the
// output; it is not required for matching correctness.
type Track []Waypoint

// Validate checks every waypoint on the track.
func (t Track) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty track", ErrConfiguration)
	}
	for i, w := range t {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	return nil
}

// Tolerance bounds how far, in time and space, a pixel may be from a
// waypoint and still count as a matchup. Both bounds are inclusive.
type Tolerance struct {
	Time     time.Duration
	Distance float64 // meters
}

// Validate checks the tolerance values.
func (t Tolerance) Validate() error {
	if t.Time <= 0 {
		return fmt.Errorf("%w: time tolerance must be positive, got %s", ErrConfiguration, t.Time)
	}
	if t.Distance <= 0 {
		return fmt.Errorf("%w: distance tolerance must be positive, got %g", ErrConfiguration, t.Distance)
	}
	return nil
}

// Record is one qualifying (waypoint, pixel) association.
type Record struct {
	// WaypointIndex is the position of the matched waypoint on the
	// input track.
	WaypointIndex int
	Waypoint      Waypoint

	// Granule names the file the pixel came from.
	Granule string

	// Line and Pixel locate the value in the swath or grid.
	Line  int
	Pixel int

	Lat  float64
	Lon  float64
	Time time.Time

	// Value is the science variable reading; nil marks a pixel the
	// product flagged as having no data, which is not the same as 0.
	Value *float64

	// Flags are the decoded quality conditions active on the pixel.
	Flags []string

	// Distance is the great-circle separation from the waypoint in
	// meters; TimeOffset is the signed pixel-minus-waypoint time.
	Distance   float64
	TimeOffset time.Duration
}

// FailureKind classifies a recorded per-granule failure.
type FailureKind string

const (
	// FailureRetrieval covers search and fetch errors for a granule.
	FailureRetrieval FailureKind = "retrieval"
	// FailureDataUnavailable means the granule was retrieved but the
	// requested variable is not in it.
	FailureDataUnavailable FailureKind = "data_unavailable"
	// FailureMalformedGranule means the granule's internal arrays were
	// inconsistent.
	FailureMalformedGranule FailureKind = "malformed_granule"
	// FailureCanceled marks units never dispatched because the caller
	// aborted the search.
	FailureCanceled FailureKind = "canceled"
)

// Failure records a non-fatal per-unit error.
type Failure struct {
	WaypointIndex int
	Granule       string
	Kind          FailureKind
	Message       string
}

// Result is the outcome of one search: the qualifying records in
// deterministic order plus whatever went wrong along the way.
type Result struct {
	RunID    uuid.UUID
	Records  []Record
	Failures []Failure
}
