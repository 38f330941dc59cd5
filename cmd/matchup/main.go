// Command matchup runs an ocean-color matchup search for a track file
// and writes the matched pixels to stdout or a file.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/rkm/oceancolor-matchup/internal/cmr"
	"github.com/rkm/oceancolor-matchup/internal/config"
	"github.com/rkm/oceancolor-matchup/internal/matchup"
	"github.com/rkm/oceancolor-matchup/internal/oceandata"
	"github.com/rkm/oceancolor-matchup/internal/sensor"
	"github.com/rkm/oceancolor-matchup/internal/storage"
	"github.com/rkm/oceancolor-matchup/pkg/track"
)

type options struct {
	Sensor            string  `short:"s" long:"sensor" description:"Sensor to search (e.g. aqua, terra, seawifs, snpp)" required:"true"`
	Level             string  `long:"level" description:"Product level" choice:"L2" choice:"L3m" default:"L2"`
	TimeTolerance     string  `short:"t" long:"time-tolerance" description:"Maximum pixel-to-waypoint time offset (Go duration)" default:"12h"`
	DistanceTolerance float64 `short:"d" long:"distance-tolerance" description:"Maximum pixel-to-waypoint distance in meters" default:"12000"`
	Workers           int     `short:"w" long:"workers" description:"Concurrent granule workers" default:"4"`
	KeepNoData        bool    `long:"keep-no-data" description:"Keep records whose pixel has no data"`
	Dedup             bool    `long:"dedup" description:"Drop duplicate pixels per waypoint"`
	Format            string  `short:"f" long:"format" description:"Output format" choice:"csv" choice:"json" default:"csv"`
	Output            string  `short:"o" long:"output" description:"Output file (default stdout)"`
	Verbose           bool    `short:"v" long:"verbose" description:"Debug logging"`

	Args struct {
		Track string `positional-arg-name:"TRACK" description:"Track file (.geojson, .json or .csv)"`
	} `positional-args:"true" required:"true"`
}

func main() {
	if err := run(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		return err
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	timeTol, err := time.ParseDuration(opts.TimeTolerance)
	if err != nil {
		return fmt.Errorf("invalid time tolerance: %w", err)
	}

	points, err := track.ParseFile(opts.Args.Track)
	if err != nil {
		return err
	}
	waypoints := make(matchup.Track, 0, len(points))
	for _, p := range points {
		waypoints = append(waypoints, matchup.Waypoint{Time: p.Time, Lat: p.Lat, Lon: p.Lon})
	}

	service, err := buildService(cfg, opts, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := service.Search(ctx, waypoints, opts.Sensor, sensor.Level(opts.Level), matchup.Tolerance{
		Time:     timeTol,
		Distance: opts.DistanceTolerance,
	})
	if err != nil && result == nil {
		return err
	}

	for _, f := range result.Failures {
		logger.Warn("granule failure",
			"waypoint", f.WaypointIndex, "granule", f.Granule, "kind", f.Kind, "message", f.Message)
	}

	out := io.Writer(os.Stdout)
	if opts.Output != "" {
		file, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	if opts.Format == "json" {
		err = writeJSON(out, result)
	} else {
		err = writeCSV(out, result)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "matched %d pixels across %d waypoints (%d failures)\n",
		len(result.Records), len(waypoints), len(result.Failures))
	return ctx.Err()
}

func buildService(cfg *config.Config, opts options, logger *slog.Logger) (*matchup.Service, error) {
	registry := sensor.NewRegistry()
	if cfg.Matchup.RegistryPath != "" {
		var err error
		registry, err = sensor.LoadRegistry(cfg.Matchup.RegistryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load product registry: %w", err)
		}
	}

	searcher := cmr.NewGranuleSearcher(cmr.NewClient(cfg.CMR.BaseURL, cfg.CMR.Timeout).WithLogger(logger))

	downloader := oceandata.NewClient(
		cfg.OceanData.BaseURL,
		cfg.OceanData.Username,
		cfg.OceanData.Password,
		cfg.OceanData.Timeout,
	).WithLogger(logger)

	var backend storage.Backend
	switch cfg.Storage.Backend {
	case "minio":
		var err error
		backend, err = storage.NewMinIO(context.Background(), storage.MinIOConfig{
			Endpoint:  cfg.Storage.MinIOEndpoint,
			AccessKey: cfg.Storage.MinIOAccessKey,
			SecretKey: cfg.Storage.MinIOSecretKey,
			Bucket:    cfg.Storage.MinIOBucket,
			UseSSL:    cfg.Storage.MinIOUseSSL,
			CacheDir:  cfg.Storage.MinIOCacheDir,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio storage: %w", err)
		}
	default:
		if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		var err error
		backend, err = storage.NewFileSystem(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize filesystem storage: %w", err)
		}
	}
	store := storage.NewStore(backend, downloader, cfg.Storage.Download, logger)

	return matchup.NewService(registry, searcher, matchup.NewStoreFetcher(store), matchup.Options{
		Workers:     opts.Workers,
		KeepNoData:  opts.KeepNoData,
		DedupPixels: opts.Dedup,
	}, logger), nil
}

func writeCSV(w io.Writer, result *matchup.Result) error {
	cw := csv.NewWriter(w)
	header := []string{
		"waypoint_index", "waypoint_time", "waypoint_lat", "waypoint_lon",
		"granule", "line", "pixel", "lat", "lon", "time",
		"value", "flags", "distance_m", "time_offset_s",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range result.Records {
		value := ""
		if r.Value != nil {
			value = strconv.FormatFloat(*r.Value, 'g', -1, 64)
		}
		row := []string{
			strconv.Itoa(r.WaypointIndex),
			r.Waypoint.Time.Format(time.RFC3339),
			strconv.FormatFloat(r.Waypoint.Lat, 'g', -1, 64),
			strconv.FormatFloat(r.Waypoint.Lon, 'g', -1, 64),
			r.Granule,
			strconv.Itoa(r.Line),
			strconv.Itoa(r.Pixel),
			strconv.FormatFloat(r.Lat, 'g', -1, 64),
			strconv.FormatFloat(r.Lon, 'g', -1, 64),
			r.Time.Format(time.RFC3339),
			value,
			strings.Join(r.Flags, "|"),
			strconv.FormatFloat(r.Distance, 'f', 1, 64),
			strconv.FormatFloat(r.TimeOffset.Seconds(), 'f', 0, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

type jsonRecord struct {
	WaypointIndex     int       `json:"waypoint_index"`
	WaypointTime      time.Time `json:"waypoint_time"`
	WaypointLat       float64   `json:"waypoint_lat"`
	WaypointLon       float64   `json:"waypoint_lon"`
	Granule           string    `json:"granule"`
	Line              int       `json:"line"`
	Pixel             int       `json:"pixel"`
	Lat               float64   `json:"lat"`
	Lon               float64   `json:"lon"`
	Time              time.Time `json:"time"`
	Value             *float64  `json:"value"`
	Flags             []string  `json:"flags,omitempty"`
	DistanceM         float64   `json:"distance_m"`
	TimeOffsetSeconds float64   `json:"time_offset_seconds"`
}

func writeJSON(w io.Writer, result *matchup.Result) error {
	records := make([]jsonRecord, 0, len(result.Records))
	for _, r := range result.Records {
		records = append(records, jsonRecord{
			WaypointIndex:     r.WaypointIndex,
			WaypointTime:      r.Waypoint.Time,
			WaypointLat:       r.Waypoint.Lat,
			WaypointLon:       r.Waypoint.Lon,
			Granule:           r.Granule,
			Line:              r.Line,
			Pixel:             r.Pixel,
			Lat:               r.Lat,
			Lon:               r.Lon,
			Time:              r.Time,
			Value:             r.Value,
			Flags:             r.Flags,
			DistanceM:         r.Distance,
			TimeOffsetSeconds: r.TimeOffset.Seconds(),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"run_id":  result.RunID.String(),
		"records": records,
	})
}
