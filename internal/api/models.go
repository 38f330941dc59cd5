package api

import (
	"time"

	gostac "github.com/planetlabs/go-stac"

	"github.com/rkm/oceancolor-matchup/internal/granule"
	"github.com/rkm/oceancolor-matchup/internal/matchup"
)

const stacVersion = "1.0.0"

// MatchupRequest is the body of POST /matchup.
type MatchupRequest struct {
	Sensor string `json:"sensor"`
	// Level selects the product level, "L2" (default) or "L3m".
	Level string `json:"level,omitempty"`
	// TimeTolerance is a Go duration string, e.g. "12h".
	TimeTolerance string `json:"time_tolerance"`
	// DistanceTolerance is in meters.
	DistanceTolerance float64      `json:"distance_tolerance_m"`
	Track             []TrackPoint `json:"track"`
}

// TrackPoint is one waypoint in a matchup request.
type TrackPoint struct {
	Time time.Time `json:"time"`
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
}

// MatchupResponse is the body of a successful POST /matchup.
type MatchupResponse struct {
	RunID    string           `json:"run_id"`
	Records  []MatchupRecord  `json:"records"`
	Failures []MatchupFailure `json:"failures"`
}

// MatchupRecord is one matched pixel in a response.
type MatchupRecord struct {
	WaypointIndex int       `json:"waypoint_index"`
	Granule       string    `json:"granule"`
	Line          int       `json:"line"`
	Pixel         int       `json:"pixel"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	Time          time.Time `json:"time"`
	// Value is null for pixels the product marked as having no data.
	Value             *float64 `json:"value"`
	Flags             []string `json:"flags,omitempty"`
	DistanceM         float64  `json:"distance_m"`
	TimeOffsetSeconds float64  `json:"time_offset_seconds"`
}

// MatchupFailure is one recorded per-granule failure in a response.
type MatchupFailure struct {
	WaypointIndex int    `json:"waypoint_index"`
	Granule       string `json:"granule,omitempty"`
	Kind          string `json:"kind"`
	Message       string `json:"message"`
}

func toMatchupResponse(result *matchup.Result) *MatchupResponse {
	resp := &MatchupResponse{
		RunID:    result.RunID.String(),
		Records:  make([]MatchupRecord, 0, len(result.Records)),
		Failures: make([]MatchupFailure, 0, len(result.Failures)),
	}
	for _, r := range result.Records {
		resp.Records = append(resp.Records, MatchupRecord{
			WaypointIndex:     r.WaypointIndex,
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
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, MatchupFailure{
			WaypointIndex: f.WaypointIndex,
			Granule:       f.Granule,
			Kind:          string(f.Kind),
			Message:       f.Message,
		})
	}
	return resp
}

// ItemCollection is a STAC ItemCollection (GeoJSON FeatureCollection).
type ItemCollection struct {
	Type           string         `json:"type"`
	Features       []*gostac.Item `json:"features"`
	NumberReturned int            `json:"numberReturned"`
}

// toItemCollection renders granule references as a STAC ItemCollection.
func toItemCollection(refs []granule.Ref, collection string) *ItemCollection {
	items := make([]*gostac.Item, 0, len(refs))
	for _, ref := range refs {
		item := &gostac.Item{
			Version:    stacVersion,
			Id:         ref.Name,
			Collection: collection,
			Properties: map[string]any{},
			Assets:     map[string]*gostac.Asset{},
			Links:      []*gostac.Link{},
		}

		if !ref.Start.IsZero() {
			item.Properties["datetime"] = nil
			item.Properties["start_datetime"] = ref.Start.Format(time.RFC3339)
			end := ref.End
			if end.IsZero() {
				end = ref.Start
			}
			item.Properties["end_datetime"] = end.Format(time.RFC3339)
		}

		if attrs, err := granule.ParseName(ref.Name); err == nil {
			item.Properties["platform"] = attrs.Mission()
			item.Properties["processing:level"] = attrs.Level
		}

		if ref.URL != "" {
			item.Assets["data"] = &gostac.Asset{
				Href:  ref.URL,
				Type:  "application/x-netcdf",
				Roles: []string{"data"},
			}
		}

		items = append(items, item)
	}

	return &ItemCollection{
		Type:           "FeatureCollection",
		Features:       items,
		NumberReturned: len(items),
	}
}
