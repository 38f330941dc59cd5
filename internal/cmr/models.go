package cmr

import (
	"fmt"
	"time"

	"github.com/rkm/oceancolor-matchup/internal/granule"
)

// UMMSearchResponse represents a CMR UMM-G search response.
type UMMSearchResponse struct {
	Hits  int             `json:"hits"`
	Took  int             `json:"took"`
	Items []UMMResultItem `json:"items"`
}

// UMMResultItem wraps a UMM granule with metadata.
type UMMResultItem struct {
	Meta UMMMeta    `json:"meta"`
	UMM  UMMGranule `json:"umm"`
}

// UMMMeta contains metadata about a CMR result item.
type UMMMeta struct {
	ConceptID    string    `json:"concept-id"`
	RevisionID   int       `json:"revision-id"`
	NativeID     string    `json:"native-id"`
	ProviderID   string    `json:"provider-id"`
	FormatString string    `json:"format"`
	RevisionDate time.Time `json:"revision-date"`
}

// UMMGranule represents a UMM-G (Unified Metadata Model for Granules)
// record, trimmed to the fields ocean-color matchups use.
type UMMGranule struct {
	GranuleUR           string              `json:"GranuleUR"`
	CollectionReference CollectionReference `json:"CollectionReference"`
	RelatedUrls         []RelatedURL        `json:"RelatedUrls,omitempty"`
	DataGranule         *DataGranule        `json:"DataGranule,omitempty"`
	TemporalExtent      *TemporalExtent     `json:"TemporalExtent,omitempty"`
}

// CollectionReference identifies the parent collection.
type CollectionReference struct {
	ShortName string `json:"ShortName"`
	Version   string `json:"Version"`
}

// RelatedURL represents a URL related to the granule.
type RelatedURL struct {
	URL         string   `json:"URL"`
	Type        string   `json:"Type"` // e.g., "GET DATA"
	Subtype     string   `json:"Subtype,omitempty"`
	Description string   `json:"Description,omitempty"`
	MimeType    string   `json:"MimeType,omitempty"`
	Size        *float64 `json:"Size,omitempty"`
	SizeUnit    string   `json:"SizeUnit,omitempty"`
}

// DataGranule contains data granule information.
type DataGranule struct {
	DayNightFlag       string       `json:"DayNightFlag,omitempty"`
	ProductionDateTime string       `json:"ProductionDateTime,omitempty"`
	Identifiers        []Identifier `json:"Identifiers,omitempty"`
}

// Identifier contains identifier information.
type Identifier struct {
	Identifier     string `json:"Identifier"`
	IdentifierType string `json:"IdentifierType"` // e.g., "ProducerGranuleId"
}

// TemporalExtent contains temporal information.
type TemporalExtent struct {
	RangeDateTime  *RangeDateTime `json:"RangeDateTime,omitempty"`
	SingleDateTime string         `json:"SingleDateTime,omitempty"`
}

// RangeDateTime represents a time range.
type RangeDateTime struct {
	BeginningDateTime string `json:"BeginningDateTime"`
	EndingDateTime    string `json:"EndingDateTime"`
}

// ProducerGranuleID returns the producer granule identifier, the
// filename granules are stored and downloaded under.
func (g *UMMGranule) ProducerGranuleID() string {
	if g.DataGranule == nil {
		return ""
	}
	for _, id := range g.DataGranule.Identifiers {
		if id.IdentifierType == "ProducerGranuleId" {
			return id.Identifier
		}
	}
	return ""
}

// GetStartTime returns the start time of the granule.
func (g *UMMGranule) GetStartTime() (time.Time, error) {
	if g.TemporalExtent == nil {
		return time.Time{}, nil
	}

	if g.TemporalExtent.RangeDateTime != nil && g.TemporalExtent.RangeDateTime.BeginningDateTime != "" {
		return parseTime(g.TemporalExtent.RangeDateTime.BeginningDateTime)
	}

	if g.TemporalExtent.SingleDateTime != "" {
		return parseTime(g.TemporalExtent.SingleDateTime)
	}

	return time.Time{}, nil
}

// GetEndTime returns the end time of the granule.
func (g *UMMGranule) GetEndTime() (time.Time, error) {
	if g.TemporalExtent == nil {
		return time.Time{}, nil
	}

	if g.TemporalExtent.RangeDateTime != nil && g.TemporalExtent.RangeDateTime.EndingDateTime != "" {
		return parseTime(g.TemporalExtent.RangeDateTime.EndingDateTime)
	}

	if g.TemporalExtent.SingleDateTime != "" {
		return parseTime(g.TemporalExtent.SingleDateTime)
	}

	return time.Time{}, nil
}

// GetDataURL returns the primary data download URL.
func (g *UMMGranule) GetDataURL() string {
	for _, url := range g.RelatedUrls {
		if url.Type == "GET DATA" {
			return url.URL
		}
	}
	return ""
}

// Ref converts the UMM record to a granule reference. The producer
// granule id is required; granules without one cannot be fetched.
func (g *UMMGranule) Ref() (granule.Ref, error) {
	name := g.ProducerGranuleID()
	if name == "" {
		// Some providers only fill GranuleUR; it usually equals the
		// producer filename for OB_DAAC.
		name = g.GranuleUR
	}
	if name == "" {
		return granule.Ref{}, fmt.Errorf("granule has no producer id")
	}

	start, err := g.GetStartTime()
	if err != nil {
		return granule.Ref{}, fmt.Errorf("granule %s: %w", name, err)
	}
	end, err := g.GetEndTime()
	if err != nil {
		return granule.Ref{}, fmt.Errorf("granule %s: %w", name, err)
	}

	return granule.Ref{
		Name:  name,
		Start: start,
		End:   end,
		URL:   g.GetDataURL(),
	}, nil
}

// parseTime parses a CMR timestamp string.
func parseTime(s string) (time.Time, error) {
	// CMR uses ISO 8601 format
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.000Z",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time: %s", s)
}
