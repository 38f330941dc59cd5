package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rkm/oceancolor-matchup/internal/config"
	"github.com/rkm/oceancolor-matchup/internal/matchup"
	"github.com/rkm/oceancolor-matchup/internal/oceandata"
	"github.com/rkm/oceancolor-matchup/internal/sensor"
)

// MatchupRunner runs matchup searches. *matchup.Service satisfies it.
type MatchupRunner interface {
	Search(ctx context.Context, track matchup.Track, sensorName string, level sensor.Level, tol matchup.Tolerance) (*matchup.Result, error)
}

// FileSearcher lists archive filenames. *oceandata.Client satisfies it.
type FileSearcher interface {
	FileSearch(ctx context.Context, req oceandata.FileSearchRequest) ([]string, error)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	cfg      *config.Config
	runner   MatchupRunner
	searcher matchup.Searcher
	files    FileSearcher
	registry *sensor.Registry
	logger   *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.Config, runner MatchupRunner, searcher matchup.Searcher, files FileSearcher, registry *sensor.Registry, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:      cfg,
		runner:   runner,
		searcher: searcher,
		files:    files,
		registry: registry,
		logger:   logger,
	}
}

// Health returns service health status.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Sensors lists the sensors the service can search.
// GET /sensors
func (h *Handlers) Sensors(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Sensors()
	sort.Strings(names)
	WriteJSON(w, http.StatusOK, map[string]any{"sensors": names})
}

// Matchup runs a matchup search for the posted track.
// POST /matchup
func (h *Handlers) Matchup(w http.ResponseWriter, r *http.Request) {
	var req MatchupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Sensor == "" {
		WriteBadRequest(w, "sensor is required")
		return
	}
	if len(req.Track) == 0 {
		WriteBadRequest(w, "track must have at least one point")
		return
	}
	if max := h.cfg.Matchup.MaxTrackPoints; len(req.Track) > max {
		WriteBadRequest(w, fmt.Sprintf("track has %d points, limit is %d", len(req.Track), max))
		return
	}

	timeTol, err := time.ParseDuration(req.TimeTolerance)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid time_tolerance: %v", err))
		return
	}

	level := sensor.Level(req.Level)
	if req.Level == "" {
		level = sensor.LevelL2
	}

	track := make(matchup.Track, 0, len(req.Track))
	for _, p := range req.Track {
		track = append(track, matchup.Waypoint{Time: p.Time, Lat: p.Lat, Lon: p.Lon})
	}
	tol := matchup.Tolerance{Time: timeTol, Distance: req.DistanceTolerance}

	result, err := h.runner.Search(r.Context(), track, req.Sensor, level, tol)
	if err != nil {
		switch {
		case errors.Is(err, matchup.ErrConfiguration):
			WriteBadRequest(w, err.Error())
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
			h.logger.Warn("matchup request canceled", "error", err)
		default:
			h.logger.Error("matchup search failed", "error", err)
			WriteInternalError(w, "matchup search failed")
		}
		return
	}

	WriteJSON(w, http.StatusOK, toMatchupResponse(result))
}

// Granules searches the catalog and returns matching granules as a
// STAC ItemCollection.
// GET /granules?sensor=aqua&level=L2&start=...&end=...[&lat=&lon=&radius_m=]
func (h *Handlers) Granules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sensorName := q.Get("sensor")
	if sensorName == "" {
		WriteBadRequest(w, "sensor is required")
		return
	}
	level := sensor.Level(q.Get("level"))
	if level == "" {
		level = sensor.LevelL2
	}
	product, err := h.registry.Product(sensorName, level)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid start: %v", err))
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid end: %v", err))
		return
	}
	if !end.After(start) {
		WriteBadRequest(w, "end must be after start")
		return
	}

	query := matchup.GranuleQuery{Product: product, Start: start, End: end}
	if q.Get("radius_m") != "" {
		query.Lat, err = strconv.ParseFloat(q.Get("lat"), 64)
		if err != nil {
			WriteBadRequest(w, "invalid lat")
			return
		}
		query.Lon, err = strconv.ParseFloat(q.Get("lon"), 64)
		if err != nil {
			WriteBadRequest(w, "invalid lon")
			return
		}
		query.Radius, err = strconv.ParseFloat(q.Get("radius_m"), 64)
		if err != nil || query.Radius <= 0 {
			WriteBadRequest(w, "invalid radius_m")
			return
		}
	}

	refs, err := h.searcher.FindGranules(r.Context(), query)
	if err != nil {
		h.logger.Error("granule search failed", "error", err)
		WriteUpstreamError(w, "granule catalog search failed")
		return
	}

	WriteGeoJSON(w, http.StatusOK, toItemCollection(refs, product.ShortName))
}

// Files lists archive filenames straight from the OB.DAAC file-search
// API, without going through the granule catalog.
// GET /files?sensor=aqua&dtype=L2&start=2016-09-01&end=2016-09-30
func (h *Handlers) Files(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sensorName := q.Get("sensor")
	if sensorName == "" {
		WriteBadRequest(w, "sensor is required")
		return
	}
	dtype := q.Get("dtype")
	if dtype == "" {
		dtype = "L2"
	}

	start, err := time.Parse("2006-01-02", q.Get("start"))
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid start: %v", err))
		return
	}
	end, err := time.Parse("2006-01-02", q.Get("end"))
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid end: %v", err))
		return
	}
	if end.Before(start) {
		WriteBadRequest(w, "end must not be before start")
		return
	}

	names, err := h.files.FileSearch(r.Context(), oceandata.FileSearchRequest{
		Sensor: sensorName,
		DType:  dtype,
		Start:  start,
		End:    end,
	})
	if err != nil {
		h.logger.Error("file search failed", "error", err)
		WriteUpstreamError(w, "archive file search failed")
		return
	}
	if names == nil {
		names = []string{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"files": names, "count": len(names)})
}
