package matchup

import (
	"fmt"
	"math"
	"time"

	"github.com/rkm/oceancolor-matchup/internal/granule"
)

// Granule is an open granule as the matchup core consumes it:
// flattened coordinate arrays in line-major order plus per-variable
// value lookup. granule.Dataset satisfies it.
type Granule interface {
	Name() string
	Shape() (lines, pixels int)
	Coords() (lats, lons []float64, times []time.Time, err error)
	Values(variable string) ([]float64, error)
	Flags() ([]uint32, error)
	Close() error
}

// PixelValue is one extracted pixel, before it is joined to a
// waypoint.
type PixelValue struct {
	Line  int
	Pixel int
	Lat   float64
	Lon   float64
	Time  time.Time
	// Value is nil where the product recorded no data.
	Value *float64
	Flags []string
}

// Extract reads the named variable at the given flattened indices and
// returns one PixelValue per index, in the caller's order. Quality
// flags are decoded with decode when the granule carries a flag array;
// L3m products do not.
func Extract(g Granule, variable string, indices []int, decode func(uint32) []string) ([]PixelValue, error) {
	if len(indices) == 0 {
		return nil, nil
	}

	lats, lons, times, err := g.Coords()
	if err != nil {
		return nil, err
	}
	values, err := g.Values(variable)
	if err != nil {
		return nil, err
	}
	if len(values) != len(lats) {
		return nil, fmt.Errorf("%w: %s has %d values for %d coordinates",
			granule.ErrMalformed, variable, len(values), len(lats))
	}
	flags, err := g.Flags()
	if err != nil {
		return nil, err
	}
	if flags != nil && len(flags) != len(values) {
		return nil, fmt.Errorf("%w: flag array has %d entries for %d pixels",
			granule.ErrMalformed, len(flags), len(values))
	}

	_, pixels := g.Shape()
	out := make([]PixelValue, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(values) {
			return nil, fmt.Errorf("%w: pixel index %d outside granule of %d pixels",
				granule.ErrMalformed, i, len(values))
		}
		pv := PixelValue{
			Line:  i / pixels,
			Pixel: i % pixels,
			Lat:   lats[i],
			Lon:   lons[i],
			Time:  times[i],
		}
		if v := values[i]; !math.IsNaN(v) {
			pv.Value = &v
		}
		if flags != nil && decode != nil {
			pv.Flags = decode(flags[i])
		}
		out = append(out, pv)
	}
	return out, nil
}
