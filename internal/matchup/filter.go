package matchup

import (
	"fmt"
	"time"

	"github.com/rkm/oceancolor-matchup/internal/granule"
)

// InRange returns the flattened pixel indices whose coordinates fall
// within tol of the waypoint. Both bounds are inclusive and both must
// hold; an empty result is a normal outcome, not an error. The time
// check runs first since it is the cheaper of the two.
func InRange(wp Waypoint, tol Tolerance, lats, lons []float64, times []time.Time) ([]int, error) {
	if len(lats) != len(lons) || len(lats) != len(times) {
		return nil, fmt.Errorf("%w: coordinate arrays disagree (lat %d, lon %d, time %d)",
			granule.ErrMalformed, len(lats), len(lons), len(times))
	}

	var hits []int
	for i := range lats {
		dt := times[i].Sub(wp.Time)
		if dt < 0 {
			dt = -dt
		}
		if dt > tol.Time {
			continue
		}
		if Distance(wp.Lat, wp.Lon, lats[i], lons[i]) > tol.Distance {
			continue
		}
		hits = append(hits, i)
	}
	return hits, nil
}
