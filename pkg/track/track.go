// Package track parses vessel or drifter tracks from GeoJSON and CSV.
package track

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Point is one timestamped track position.
type Point struct {
	Time time.Time
	Lat  float64
	Lon  float64
}

// Track is an ordered sequence of points, in source order.
type Track []Point

// geometry is the subset of GeoJSON geometry the parser needs.
type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   *geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

// ParseGeoJSON reads a FeatureCollection of Point features, each
// carrying an RFC 3339 "time" property.
func ParseGeoJSON(r io.Reader) (Track, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode GeoJSON: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("FeatureCollection has no features")
	}

	track := make(Track, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil || f.Geometry.Type != "Point" {
			return nil, fmt.Errorf("feature %d: only Point geometries are supported", i)
		}
		var coords []float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("feature %d: failed to unmarshal coordinates: %w", i, err)
		}
		if len(coords) < 2 {
			return nil, fmt.Errorf("feature %d: Point needs [lon, lat], got %d values", i, len(coords))
		}

		raw, ok := f.Properties["time"].(string)
		if !ok {
			return nil, fmt.Errorf("feature %d: missing \"time\" property", i)
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("feature %d: bad time %q: %w", i, raw, err)
		}

		track = append(track, Point{Time: at.UTC(), Lon: coords[0], Lat: coords[1]})
	}
	return track, nil
}

// ParseCSV reads a track from CSV with a header row naming the
// columns time, lat and lon, in any order. Times are RFC 3339.
func ParseCSV(r io.Reader) (Track, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"time", "lat", "lon"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing column %q", required)
		}
	}

	var track Track
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		at, err := time.Parse(time.RFC3339, row[cols["time"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad time %q: %w", line, row[cols["time"]], err)
		}
		lat, err := strconv.ParseFloat(row[cols["lat"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad latitude %q", line, row[cols["lat"]])
		}
		lon, err := strconv.ParseFloat(row[cols["lon"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad longitude %q", line, row[cols["lon"]])
		}

		track = append(track, Point{Time: at.UTC(), Lat: lat, Lon: lon})
	}
	if len(track) == 0 {
		return nil, fmt.Errorf("CSV has no data rows")
	}
	return track, nil
}

// ParseFile loads a track, choosing the format from the file
// extension: .json and .geojson parse as GeoJSON, .csv as CSV.
func ParseFile(path string) (Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track file: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".geojson":
		return ParseGeoJSON(f)
	case ".csv":
		return ParseCSV(f)
	default:
		return nil, fmt.Errorf("unsupported track format %q (want .geojson, .json or .csv)", ext)
	}
}
