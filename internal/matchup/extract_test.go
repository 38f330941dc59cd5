package matchup

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rkm/oceancolor-matchup/internal/granule"
)

// fakeGranule is an in-memory Granule for extractor and service tests.
type fakeGranule struct {
	name   string
	lines  int
	pixels int
	lats   []float64
	lons   []float64
	times  []time.Time
	values map[string][]float64
	flags  []uint32

	coordsErr error
	closed    bool
}

func (g *fakeGranule) Name() string            { return g.name }
func (g *fakeGranule) Shape() (int, int)       { return g.lines, g.pixels }
func (g *fakeGranule) Flags() ([]uint32, error) { return g.flags, nil }
func (g *fakeGranule) Close() error            { g.closed = true; return nil }

func (g *fakeGranule) Coords() ([]float64, []float64, []time.Time, error) {
	if g.coordsErr != nil {
		return nil, nil, nil, g.coordsErr
	}
	return g.lats, g.lons, g.times, nil
}

func (g *fakeGranule) Values(variable string) ([]float64, error) {
	vals, ok := g.values[variable]
	if !ok {
		return nil, fmt.Errorf("%w: no variable %q", granule.ErrDataUnavailable, variable)
	}
	return vals, nil
}

// gridGranule builds a 2x2 granule centered on (lat, lon) with every
// pixel observed at the given time.
func gridGranule(name string, lat, lon float64, at time.Time, values []float64) *fakeGranule {
	return &fakeGranule{
		name:   name,
		lines:  2,
		pixels: 2,
		lats:   []float64{lat, lat, lat + 0.01, lat + 0.01},
		lons:   []float64{lon, lon + 0.01, lon, lon + 0.01},
		times:  []time.Time{at, at, at, at},
		values: map[string][]float64{"chlor_a": values},
	}
}

func TestExtract(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	g := gridGranule("A2016245.L2_LAC_OC.nc", 36.7, -122.0, at,
		[]float64{0.5, math.NaN(), 1.5, 2.0})
	g.flags = []uint32{0, 2, 1 << 30, 0}

	decode := func(mask uint32) []string {
		if mask == 0 {
			return nil
		}
		return []string{fmt.Sprintf("bit%d", mask)}
	}

	got, err := Extract(g, "chlor_a", []int{3, 1, 2}, decode)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Extract() returned %d pixels, want 3", len(got))
	}

	// Caller order is preserved.
	if got[0].Line != 1 || got[0].Pixel != 1 {
		t.Errorf("pixel 0 at (%d,%d), want (1,1)", got[0].Line, got[0].Pixel)
	}
	if got[0].Value == nil || *got[0].Value != 2.0 {
		t.Errorf("pixel 0 value = %v, want 2.0", got[0].Value)
	}

	// NaN becomes an explicit no-data marker, not a zero.
	if got[1].Value != nil {
		t.Errorf("pixel 1 value = %v, want nil", *got[1].Value)
	}

	if len(got[2].Flags) != 1 {
		t.Errorf("pixel 2 flags = %v, want one decoded flag", got[2].Flags)
	}
}

func TestExtractEmptySelection(t *testing.T) {
	g := gridGranule("x.nc", 0, 0, time.Now(), []float64{1, 2, 3, 4})
	got, err := Extract(g, "chlor_a", nil, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != nil {
		t.Errorf("Extract() = %v, want nil", got)
	}
}

func TestExtractMissingVariable(t *testing.T) {
	g := gridGranule("x.nc", 0, 0, time.Now(), []float64{1, 2, 3, 4})
	_, err := Extract(g, "sst", []int{0}, nil)
	if !errors.Is(err, granule.ErrDataUnavailable) {
		t.Errorf("Extract() error = %v, want ErrDataUnavailable", err)
	}
}

func TestExtractIndexOutOfRange(t *testing.T) {
	g := gridGranule("x.nc", 0, 0, time.Now(), []float64{1, 2, 3, 4})
	_, err := Extract(g, "chlor_a", []int{7}, nil)
	if !errors.Is(err, granule.ErrMalformed) {
		t.Errorf("Extract() error = %v, want ErrMalformed", err)
	}
}

func TestExtractValueCoordinateMismatch(t *testing.T) {
	g := gridGranule("x.nc", 0, 0, time.Now(), []float64{1, 2})
	_, err := Extract(g, "chlor_a", []int{0}, nil)
	if !errors.Is(err, granule.ErrMalformed) {
		t.Errorf("Extract() error = %v, want ErrMalformed", err)
	}
}
