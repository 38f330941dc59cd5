package matchup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rkm/oceancolor-matchup/internal/granule"
	"github.com/rkm/oceancolor-matchup/internal/sensor"
)

type fakeSearcher struct {
	find func(ctx context.Context, q GranuleQuery) ([]granule.Ref, error)
}

func (s *fakeSearcher) FindGranules(ctx context.Context, q GranuleQuery) ([]granule.Ref, error) {
	return s.find(ctx, q)
}

type fakeFetcher struct {
	fetch func(ctx context.Context, ref granule.Ref) (Granule, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref granule.Ref) (Granule, error) {
	return f.fetch(ctx, ref)
}

func refsFor(names ...string) []granule.Ref {
	refs := make([]granule.Ref, 0, len(names))
	for _, n := range names {
		refs = append(refs, granule.Ref{Name: n})
	}
	return refs
}

func testTrack(at time.Time) Track {
	return Track{
		{Time: at, Lat: 36.7, Lon: -122.0},
		{Time: at.Add(2 * time.Hour), Lat: 36.9, Lon: -122.2},
	}
}

func testTolerance() Tolerance {
	return Tolerance{Time: 12 * time.Hour, Distance: 12_000}
}

func newTestService(searcher Searcher, fetcher Fetcher, opts Options) *Service {
	return NewService(sensor.NewRegistry(), searcher, fetcher, opts, nil)
}

func TestSearchOrderingAndEquivalence(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := testTrack(at)

	searcher := &fakeSearcher{
		find: func(_ context.Context, q GranuleQuery) ([]granule.Ref, error) {
			if q.Product.ShortName != "MODISA_L2_OC" {
				return nil, fmt.Errorf("unexpected short name %q", q.Product.ShortName)
			}
			return refsFor("A.nc", "B.nc"), nil
		},
	}
	fetcher := &fakeFetcher{
		fetch: func(_ context.Context, ref granule.Ref) (Granule, error) {
			// Each granule covers both waypoints.
			g := gridGranule(ref.Name, 36.7, -122.0, at, []float64{0.5, 0.6, 0.7, 0.8})
			if ref.Name == "B.nc" {
				g = gridGranule(ref.Name, 36.9, -122.2, at.Add(time.Hour), []float64{1.5, 1.6, 1.7, 1.8})
			}
			return g, nil
		},
	}

	serial, err := newTestService(searcher, fetcher, Options{Workers: 1}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("serial Search() error = %v", err)
	}
	parallel, err := newTestService(searcher, fetcher, Options{Workers: 8}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("parallel Search() error = %v", err)
	}

	if len(serial.Records) == 0 {
		t.Fatal("serial Search() produced no records")
	}
	if !reflect.DeepEqual(serial.Records, parallel.Records) {
		t.Error("parallel records differ from serial records")
	}
	if !reflect.DeepEqual(serial.Failures, parallel.Failures) {
		t.Error("parallel failures differ from serial failures")
	}

	// Records are grouped by waypoint in track order, then by granule
	// in search order.
	lastWaypoint := -1
	for _, r := range serial.Records {
		if r.WaypointIndex < lastWaypoint {
			t.Fatalf("records out of waypoint order: %d after %d", r.WaypointIndex, lastWaypoint)
		}
		lastWaypoint = r.WaypointIndex
	}
	if serial.Records[0].Granule != "A.nc" {
		t.Errorf("first record from %s, want A.nc", serial.Records[0].Granule)
	}
}

func TestSearchPartialGranuleFailure(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := Track{{Time: at, Lat: 36.7, Lon: -122.0}}

	searcher := &fakeSearcher{
		find: func(context.Context, GranuleQuery) ([]granule.Ref, error) {
			return refsFor("A.nc", "B.nc", "C.nc"), nil
		},
	}
	fetcher := &fakeFetcher{
		fetch: func(_ context.Context, ref granule.Ref) (Granule, error) {
			if ref.Name == "B.nc" {
				return nil, errors.New("connection reset")
			}
			return gridGranule(ref.Name, 36.7, -122.0, at, []float64{0.5, 0.6, 0.7, 0.8}), nil
		},
	}

	result, err := newTestService(searcher, fetcher, Options{Workers: 4}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	for _, r := range result.Records {
		if r.Granule == "B.nc" {
			t.Errorf("got record from failed granule B.nc")
		}
	}
	if len(result.Failures) != 1 {
		t.Fatalf("got %d failures, want 1: %+v", len(result.Failures), result.Failures)
	}
	f := result.Failures[0]
	if f.Granule != "B.nc" || f.Kind != FailureRetrieval {
		t.Errorf("failure = %+v, want retrieval failure for B.nc", f)
	}

	// A.nc and C.nc still contributed.
	granules := map[string]bool{}
	for _, r := range result.Records {
		granules[r.Granule] = true
	}
	if !granules["A.nc"] || !granules["C.nc"] {
		t.Errorf("records from %v, want A.nc and C.nc", granules)
	}
}

func TestSearchFailureKinds(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := Track{{Time: at, Lat: 36.7, Lon: -122.0}}

	tests := []struct {
		name string
		g    func() *fakeGranule
		want FailureKind
	}{
		{
			name: "variable missing from granule",
			g: func() *fakeGranule {
				g := gridGranule("A.nc", 36.7, -122.0, at, nil)
				delete(g.values, "chlor_a")
				return g
			},
			want: FailureDataUnavailable,
		},
		{
			name: "inconsistent coordinate arrays",
			g: func() *fakeGranule {
				g := gridGranule("A.nc", 36.7, -122.0, at, []float64{1, 2, 3, 4})
				g.lons = g.lons[:2]
				return g
			},
			want: FailureMalformedGranule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{
				find: func(context.Context, GranuleQuery) ([]granule.Ref, error) {
					return refsFor("A.nc"), nil
				},
			}
			fetcher := &fakeFetcher{
				fetch: func(context.Context, granule.Ref) (Granule, error) {
					return tt.g(), nil
				},
			}

			result, err := newTestService(searcher, fetcher, Options{}).
				Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(result.Failures) != 1 {
				t.Fatalf("got %d failures, want 1", len(result.Failures))
			}
			if result.Failures[0].Kind != tt.want {
				t.Errorf("failure kind = %s, want %s", result.Failures[0].Kind, tt.want)
			}
		})
	}
}

func TestSearchWaypointSearchFailure(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := testTrack(at)

	var call int
	searcher := &fakeSearcher{
		find: func(context.Context, GranuleQuery) ([]granule.Ref, error) {
			call++
			if call == 1 {
				return nil, errors.New("catalog timeout")
			}
			return refsFor("B.nc"), nil
		},
	}
	fetcher := &fakeFetcher{
		fetch: func(_ context.Context, ref granule.Ref) (Granule, error) {
			return gridGranule(ref.Name, 36.9, -122.2, at.Add(2*time.Hour), []float64{0.5, 0.6, 0.7, 0.8}), nil
		},
	}

	result, err := newTestService(searcher, fetcher, Options{}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].WaypointIndex != 0 {
		t.Fatalf("failures = %+v, want one for waypoint 0", result.Failures)
	}
	if len(result.Records) == 0 {
		t.Error("waypoint 1 produced no records despite a healthy search")
	}
}

func TestSearchNoPixelsInRange(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := Track{{Time: at, Lat: 36.7, Lon: -122.0}}

	searcher := &fakeSearcher{
		find: func(context.Context, GranuleQuery) ([]granule.Ref, error) {
			return refsFor("far.nc"), nil
		},
	}
	fetcher := &fakeFetcher{
		fetch: func(context.Context, granule.Ref) (Granule, error) {
			// Catalog footprints overlap the search circle, the pixels
			// themselves do not.
			return gridGranule("far.nc", 40.0, -130.0, at, []float64{1, 2, 3, 4}), nil
		},
	}

	result, err := newTestService(searcher, fetcher, Options{}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Records) != 0 || len(result.Failures) != 0 {
		t.Errorf("got %d records and %d failures, want none", len(result.Records), len(result.Failures))
	}
}

func TestSearchNoDataHandling(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := Track{{Time: at, Lat: 36.7, Lon: -122.0}}

	newGranule := func() *fakeGranule {
		return gridGranule("A.nc", 36.7, -122.0, at, []float64{0.5, math.NaN(), math.NaN(), math.NaN()})
	}
	searcher := &fakeSearcher{
		find: func(context.Context, GranuleQuery) ([]granule.Ref, error) {
			return refsFor("A.nc"), nil
		},
	}
	fetcher := &fakeFetcher{
		fetch: func(context.Context, granule.Ref) (Granule, error) { return newGranule(), nil },
	}

	dropped, err := newTestService(searcher, fetcher, Options{}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(dropped.Records) != 1 {
		t.Fatalf("got %d records, want 1 with no-data pixels dropped", len(dropped.Records))
	}

	kept, err := newTestService(searcher, fetcher, Options{KeepNoData: true}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(kept.Records) != 4 {
		t.Fatalf("got %d records, want 4 with no-data pixels kept", len(kept.Records))
	}
	var noData int
	for _, r := range kept.Records {
		if r.Value == nil {
			noData++
		}
	}
	if noData != 3 {
		t.Errorf("got %d no-data records, want 3", noData)
	}
}

func TestSearchPanicIsolation(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := Track{{Time: at, Lat: 36.7, Lon: -122.0}}

	searcher := &fakeSearcher{
		find: func(context.Context, GranuleQuery) ([]granule.Ref, error) {
			return refsFor("A.nc", "B.nc"), nil
		},
	}
	fetcher := &fakeFetcher{
		fetch: func(_ context.Context, ref granule.Ref) (Granule, error) {
			if ref.Name == "A.nc" {
				panic("corrupt header")
			}
			return gridGranule(ref.Name, 36.7, -122.0, at, []float64{1, 2, 3, 4}), nil
		},
	}

	result, err := newTestService(searcher, fetcher, Options{Workers: 2}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].Granule != "A.nc" {
		t.Fatalf("failures = %+v, want one panic failure for A.nc", result.Failures)
	}
	if len(result.Records) != 4 {
		t.Errorf("got %d records from B.nc, want 4", len(result.Records))
	}
}

func TestSearchCancellation(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := testTrack(at)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	searcher := &fakeSearcher{
		find: func(context.Context, GranuleQuery) ([]granule.Ref, error) {
			t.Fatal("searcher called after cancellation")
			return nil, nil
		},
	}
	fetcher := &fakeFetcher{
		fetch: func(context.Context, granule.Ref) (Granule, error) {
			t.Fatal("fetcher called after cancellation")
			return nil, nil
		},
	}

	result, err := newTestService(searcher, fetcher, Options{}).
		Search(ctx, track, "aqua", sensor.LevelL2, testTolerance())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Search() error = %v, want context.Canceled", err)
	}
	if result == nil {
		t.Fatal("Search() returned nil result on cancellation")
	}
	if len(result.Failures) != len(track) {
		t.Errorf("got %d failures, want %d canceled waypoints", len(result.Failures), len(track))
	}
	for _, f := range result.Failures {
		if f.Kind != FailureCanceled {
			t.Errorf("failure kind = %s, want %s", f.Kind, FailureCanceled)
		}
	}
}

func TestSearchDedup(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	track := Track{{Time: at, Lat: 36.7, Lon: -122.0}}

	// Two catalog entries resolving to identical pixel content, as
	// happens when reprocessed granules overlap.
	searcher := &fakeSearcher{
		find: func(context.Context, GranuleQuery) ([]granule.Ref, error) {
			return refsFor("A.nc", "A2.nc"), nil
		},
	}
	fetcher := &fakeFetcher{
		fetch: func(_ context.Context, ref granule.Ref) (Granule, error) {
			return gridGranule(ref.Name, 36.7, -122.0, at, []float64{1, 2, 3, 4}), nil
		},
	}

	plain, err := newTestService(searcher, fetcher, Options{}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(plain.Records) != 8 {
		t.Fatalf("got %d records without dedup, want 8", len(plain.Records))
	}

	deduped, err := newTestService(searcher, fetcher, Options{DedupPixels: true}).
		Search(context.Background(), track, "aqua", sensor.LevelL2, testTolerance())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(deduped.Records) != 4 {
		t.Errorf("got %d records with dedup, want 4", len(deduped.Records))
	}
}

func TestSearchConfigurationErrors(t *testing.T) {
	at := time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(
		&fakeSearcher{find: func(context.Context, GranuleQuery) ([]granule.Ref, error) { return nil, nil }},
		&fakeFetcher{fetch: func(context.Context, granule.Ref) (Granule, error) { return nil, nil }},
		Options{},
	)

	tests := []struct {
		name   string
		track  Track
		sensor string
		level  sensor.Level
		tol    Tolerance
	}{
		{"empty track", Track{}, "aqua", sensor.LevelL2, testTolerance()},
		{"latitude out of range", Track{{Time: at, Lat: 91, Lon: 0}}, "aqua", sensor.LevelL2, testTolerance()},
		{"waypoint without time", Track{{Lat: 0, Lon: 0}}, "aqua", sensor.LevelL2, testTolerance()},
		{"zero time tolerance", testTrack(at), "aqua", sensor.LevelL2, Tolerance{Distance: 1000}},
		{"negative distance tolerance", testTrack(at), "aqua", sensor.LevelL2, Tolerance{Time: time.Hour, Distance: -1}},
		{"unknown sensor", testTrack(at), "landsat", sensor.LevelL2, testTolerance()},
		{"unsupported level for sensor", testTrack(at), "seawifs", sensor.LevelL3m, testTolerance()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), tt.track, tt.sensor, tt.level, tt.tol)
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Search() error = %v, want ErrConfiguration", err)
			}
		})
	}
}
