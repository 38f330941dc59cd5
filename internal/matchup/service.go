package matchup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rkm/oceancolor-matchup/internal/granule"
	"github.com/rkm/oceancolor-matchup/internal/sensor"
)

// GranuleQuery describes one waypoint's granule search: a product, a
// time window and a circle around the waypoint.
type GranuleQuery struct {
	Product sensor.Product
	Start   time.Time
	End     time.Time
	Lat     float64
	Lon     float64
	Radius  float64 // meters
}

// Searcher finds candidate granules for a query.
type Searcher interface {
	FindGranules(ctx context.Context, q GranuleQuery) ([]granule.Ref, error)
}

// Fetcher retrieves a granule and opens it for reading.
type Fetcher interface {
	Fetch(ctx context.Context, ref granule.Ref) (Granule, error)
}

// Options tune a Service. The zero value is usable.
type Options struct {
	// Workers caps concurrent granule processing; values below 1 mean
	// serial.
	Workers int
	// KeepNoData retains records whose pixel carries the product's
	// no-data marker. By default such records are dropped.
	KeepNoData bool
	// DedupPixels collapses records that name the same waypoint and
	// pixel coordinate, keeping the first occurrence. Off by default
	// because adjacent waypoints legitimately share pixels.
	DedupPixels bool
}

// Service runs matchup searches against a granule catalog and archive.
type Service struct {
	registry *sensor.Registry
	searcher Searcher
	fetcher  Fetcher
	opts     Options
	logger   *slog.Logger
}

// NewService wires a matchup service. A nil logger discards output.
func NewService(registry *sensor.Registry, searcher Searcher, fetcher Fetcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		registry: registry,
		searcher: searcher,
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
	}
}

// unit is one (waypoint, granule) pair of work. Units are independent:
// a failure in one never affects another.
type unit struct {
	waypointIndex int
	waypoint      Waypoint
	ref           granule.Ref
}

type unitResult struct {
	records []Record
	failure *Failure
}

// Search finds every pixel of the named sensor's product within tol of
// any waypoint on the track. Records come back ordered by waypoint,
// then granule, then pixel position, regardless of worker count.
//
// Per-granule problems are recorded as Failures in the result rather
// than returned. If ctx is canceled mid-run the partial result is
// still valid and is returned alongside the context's error.
func (s *Service) Search(ctx context.Context, track Track, sensorName string, level sensor.Level, tol Tolerance) (*Result, error) {
	if err := track.Validate(); err != nil {
		return nil, err
	}
	if err := tol.Validate(); err != nil {
		return nil, err
	}
	product, err := s.registry.Product(sensorName, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	result := &Result{RunID: uuid.New()}
	s.logger.Info("matchup search started",
		"run_id", result.RunID,
		"sensor", sensorName,
		"level", level,
		"waypoints", len(track),
		"time_tolerance", tol.Time,
		"distance_tolerance_m", tol.Distance,
	)

	units := s.identify(ctx, track, product, tol, result)
	results := s.runUnits(ctx, units, product, tol)

	for _, r := range results {
		result.Records = append(result.Records, r.records...)
		if r.failure != nil {
			result.Failures = append(result.Failures, *r.failure)
		}
	}
	if s.opts.DedupPixels {
		result.Records = dedup(result.Records)
	}

	s.logger.Info("matchup search finished",
		"run_id", result.RunID,
		"records", len(result.Records),
		"failures", len(result.Failures),
	)
	return result, ctx.Err()
}

// identify runs the per-waypoint granule searches serially, so the
// unit list (and with it the output order) is deterministic. A search
// failure is recorded against the waypoint and the remaining waypoints
// still run.
func (s *Service) identify(ctx context.Context, track Track, product sensor.Product, tol Tolerance, result *Result) []unit {
	var units []unit
	for i, wp := range track {
		if ctx.Err() != nil {
			result.Failures = append(result.Failures, Failure{
				WaypointIndex: i,
				Kind:          FailureCanceled,
				Message:       "granule search canceled",
			})
			continue
		}

		refs, err := s.searcher.FindGranules(ctx, GranuleQuery{
			Product: product,
			Start:   wp.Time.Add(-tol.Time),
			End:     wp.Time.Add(tol.Time),
			Lat:     wp.Lat,
			Lon:     wp.Lon,
			Radius:  tol.Distance,
		})
		if err != nil {
			s.logger.Warn("granule search failed", "waypoint", i, "error", err)
			result.Failures = append(result.Failures, Failure{
				WaypointIndex: i,
				Kind:          FailureRetrieval,
				Message:       fmt.Sprintf("granule search: %v", err),
			})
			continue
		}
		for _, ref := range refs {
			units = append(units, unit{waypointIndex: i, waypoint: wp, ref: ref})
		}
	}
	return units
}

// processUnit fetches one granule and extracts its qualifying pixels
// for one waypoint. An empty return with a nil failure means the
// granule simply had no pixels in range.
func (s *Service) processUnit(ctx context.Context, u unit, product sensor.Product, tol Tolerance) ([]Record, *Failure) {
	g, err := s.fetcher.Fetch(ctx, u.ref)
	if err != nil {
		return nil, s.failure(u, err)
	}
	defer g.Close()

	lats, lons, times, err := g.Coords()
	if err != nil {
		return nil, s.failure(u, err)
	}
	indices, err := InRange(u.waypoint, tol, lats, lons, times)
	if err != nil {
		return nil, s.failure(u, err)
	}
	if len(indices) == 0 {
		return nil, nil
	}

	pixels, err := Extract(g, product.Variable, indices, s.registry.DecodeFlags)
	if err != nil {
		return nil, s.failure(u, err)
	}

	records := make([]Record, 0, len(pixels))
	for _, p := range pixels {
		if p.Value == nil && !s.opts.KeepNoData {
			continue
		}
		records = append(records, Record{
			WaypointIndex: u.waypointIndex,
			Waypoint:      u.waypoint,
			Granule:       u.ref.Name,
			Line:          p.Line,
			Pixel:         p.Pixel,
			Lat:           p.Lat,
			Lon:           p.Lon,
			Time:          p.Time,
			Value:         p.Value,
			Flags:         p.Flags,
			Distance:      Distance(u.waypoint.Lat, u.waypoint.Lon, p.Lat, p.Lon),
			TimeOffset:    p.Time.Sub(u.waypoint.Time),
		})
	}
	return records, nil
}

func (s *Service) failure(u unit, err error) *Failure {
	kind := FailureRetrieval
	switch {
	case errors.Is(err, granule.ErrDataUnavailable):
		kind = FailureDataUnavailable
	case errors.Is(err, granule.ErrMalformed):
		kind = FailureMalformedGranule
	}
	s.logger.Warn("granule processing failed",
		"granule", u.ref.Name, "waypoint", u.waypointIndex, "kind", kind, "error", err)
	return &Failure{
		WaypointIndex: u.waypointIndex,
		Granule:       u.ref.Name,
		Kind:          kind,
		Message:       err.Error(),
	}
}

// dedup keeps the first record for each (waypoint, line, pixel,
// granule time) key, preserving order.
func dedup(records []Record) []Record {
	type key struct {
		waypoint    int
		line, pixel int
		at          time.Time
	}
	seen := make(map[key]bool, len(records))
	out := records[:0]
	for _, r := range records {
		k := key{waypoint: r.WaypointIndex, line: r.Line, pixel: r.Pixel, at: r.Time}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
