package matchup

import (
	"errors"
	"testing"
	"time"

	"github.com/rkm/oceancolor-matchup/internal/granule"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantMin, wantMax       float64 // meters
	}{
		{
			name: "identical points",
			lat1: 36.7, lon1: -122.0, lat2: 36.7, lon2: -122.0,
			wantMin: 0, wantMax: 0,
		},
		{
			name: "one degree of latitude",
			lat1: 0, lon1: 0, lat2: 1, lon2: 0,
			wantMin: 111_100, wantMax: 111_300,
		},
		{
			name: "across the antimeridian",
			lat1: 0, lon1: 179.98, lat2: 0, lon2: -179.98,
			wantMin: 4_000, wantMax: 5_000,
		},
		{
			name: "near the pole",
			lat1: 89.9, lon1: 0, lat2: 89.9, lon2: 180,
			wantMin: 20_000, wantMax: 23_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Distance() = %g m, want in [%g, %g]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestInRange(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	wp := Waypoint{Time: at, Lat: 36.7, Lon: -122.0}
	tol := Tolerance{Time: time.Hour, Distance: 5000}

	tests := []struct {
		name  string
		lats  []float64
		lons  []float64
		times []time.Time
		want  []int
	}{
		{
			name:  "pixel at the waypoint",
			lats:  []float64{36.7},
			lons:  []float64{-122.0},
			times: []time.Time{at},
			want:  []int{0},
		},
		{
			name:  "time bound is inclusive",
			lats:  []float64{36.7, 36.7},
			lons:  []float64{-122.0, -122.0},
			times: []time.Time{at.Add(time.Hour), at.Add(time.Hour + time.Second)},
			want:  []int{0},
		},
		{
			name:  "too far away",
			lats:  []float64{36.7, 37.7},
			lons:  []float64{-122.0, -122.0},
			times: []time.Time{at, at},
			want:  []int{0},
		},
		{
			name:  "close and on time, either side of the waypoint",
			lats:  []float64{36.71, 36.69},
			lons:  []float64{-122.0, -122.0},
			times: []time.Time{at.Add(-30 * time.Minute), at.Add(30 * time.Minute)},
			want:  []int{0, 1},
		},
		{
			name:  "empty granule",
			lats:  nil,
			lons:  nil,
			times: nil,
			want:  nil,
		},
		{
			name:  "close in space but a day late",
			lats:  []float64{36.7},
			lons:  []float64{-122.0},
			times: []time.Time{at.Add(24 * time.Hour)},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InRange(wp, tol, tt.lats, tt.lons, tt.times)
			if err != nil {
				t.Fatalf("InRange() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("InRange() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("InRange()[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestInRangeAcrossAntimeridian(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	wp := Waypoint{Time: at, Lat: 0, Lon: 179.98}

	// 0.04 degrees of longitude at the equator is about 4.5 km, well
	// inside a 5 km tolerance even though the signed coordinates are
	// nearly 360 degrees apart.
	got, err := InRange(wp, Tolerance{Time: time.Hour, Distance: 5000},
		[]float64{0}, []float64{-179.98}, []time.Time{at})
	if err != nil {
		t.Fatalf("InRange() error = %v", err)
	}
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("InRange() = %v, want [0]", got)
	}
}

func TestInRangeMismatchedArrays(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	wp := Waypoint{Time: at, Lat: 0, Lon: 0}

	_, err := InRange(wp, Tolerance{Time: time.Hour, Distance: 5000},
		[]float64{0, 0}, []float64{0}, []time.Time{at, at})
	if !errors.Is(err, granule.ErrMalformed) {
		t.Errorf("InRange() error = %v, want ErrMalformed", err)
	}
}
