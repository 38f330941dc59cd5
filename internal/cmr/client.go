// Package cmr provides a client for NASA's Common Metadata Repository
// (CMR) API, scoped to ocean-color granule searches.
package cmr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rkm/oceancolor-matchup/internal/granule"
)

const (
	// DefaultBaseURL is the default CMR API base URL.
	DefaultBaseURL = "https://cmr.earthdata.nasa.gov/search"

	// DefaultPageSize is the default number of results per page.
	DefaultPageSize = 250

	// MaxPageSize is the maximum page size supported by CMR.
	MaxPageSize = 2000

	// CMRSearchAfterHeader is the header used for cursor-based pagination.
	CMRSearchAfterHeader = "CMR-Search-After"
)

// Client handles communication with the CMR API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new CMR API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// SearchResult contains one page of a CMR granule search.
type SearchResult struct {
	Granules    []UMMGranule
	Hits        int
	SearchAfter string // Cursor for next page
	TookMs      int
}

// Search performs a single-page granule search against CMR.
func (c *Client) Search(ctx context.Context, params *SearchParams) (*SearchResult, error) {
	searchURL := c.baseURL + "/granules.umm_json"

	queryParams := params.ToURLValues()

	c.logger.DebugContext(ctx, "executing CMR search",
		slog.String("url", searchURL),
		slog.String("params", queryParams.Encode()),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+queryParams.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.nasa.cmr.umm_results+json")
	req.Header.Set("User-Agent", "oceancolor-matchup/1.0")

	if params.SearchAfter != "" {
		req.Header.Set(CMRSearchAfterHeader, params.SearchAfter)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "CMR API request failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("CMR API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "CMR API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("CMR API returned status %d: %s", resp.StatusCode, string(body))
	}

	var cmrResp UMMSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&cmrResp); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode CMR response",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to decode CMR response: %w", err)
	}

	granules := make([]UMMGranule, 0, len(cmrResp.Items))
	for _, item := range cmrResp.Items {
		granules = append(granules, item.UMM)
	}

	searchAfter := resp.Header.Get(CMRSearchAfterHeader)

	c.logger.DebugContext(ctx, "CMR search completed",
		slog.Int("hits", cmrResp.Hits),
		slog.Int("returned", len(granules)),
		slog.Bool("has_next", searchAfter != ""),
	)

	return &SearchResult{
		Granules:    granules,
		Hits:        cmrResp.Hits,
		SearchAfter: searchAfter,
		TookMs:      cmrResp.Took,
	}, nil
}

// FindGranules walks all result pages for the given parameters and
// returns granule references in the requested sort order.
func (c *Client) FindGranules(ctx context.Context, params *SearchParams) ([]granule.Ref, error) {
	var refs []granule.Ref

	p := *params
	for {
		result, err := c.Search(ctx, &p)
		if err != nil {
			return nil, err
		}

		for _, g := range result.Granules {
			ref, err := g.Ref()
			if err != nil {
				c.logger.WarnContext(ctx, "skipping granule without usable metadata",
					slog.String("granule_ur", g.GranuleUR),
					slog.String("error", err.Error()),
				)
				continue
			}
			refs = append(refs, ref)
		}

		if result.SearchAfter == "" || len(result.Granules) == 0 {
			break
		}
		p.SearchAfter = result.SearchAfter
	}

	return refs, nil
}

// SearchParams represents parameters for CMR granule searches.
type SearchParams struct {
	// Collection identification
	ShortName string
	Provider  string

	// Spatial filter: a point with a radius in meters.
	Circle *Circle

	// Temporal filter in ISO 8601, "start,end".
	Temporal string

	// Pagination
	PageSize    int
	SearchAfter string // CMR-Search-After cursor

	// Sorting
	SortKey string
}

// Circle is a point-radius spatial filter.
type Circle struct {
	Lon    float64
	Lat    float64
	Radius float64 // meters
}

// TemporalWindow formats a time window as a CMR temporal parameter.
func TemporalWindow(start, end time.Time) string {
	return fmt.Sprintf("%s,%s",
		start.UTC().Format("2006-01-02T15:04:05Z"),
		end.UTC().Format("2006-01-02T15:04:05Z"),
	)
}

// ToURLValues converts SearchParams to URL query parameters.
func (p *SearchParams) ToURLValues() url.Values {
	values := url.Values{}

	if p.ShortName != "" {
		values.Set("short_name", p.ShortName)
	}
	if p.Provider != "" {
		values.Set("provider", p.Provider)
	}

	if p.Circle != nil {
		values.Set("circle", fmt.Sprintf("%g,%g,%g", p.Circle.Lon, p.Circle.Lat, p.Circle.Radius))
	}

	if p.Temporal != "" {
		values.Set("temporal", p.Temporal)
	}

	if p.PageSize > 0 {
		values.Set("page_size", fmt.Sprintf("%d", p.PageSize))
	} else {
		values.Set("page_size", fmt.Sprintf("%d", DefaultPageSize))
	}

	if p.SortKey != "" {
		values.Set("sort_key", p.SortKey)
	} else {
		// Oldest first keeps granule processing order deterministic.
		values.Set("sort_key", "start_date")
	}

	return values
}
