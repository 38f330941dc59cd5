package cmr

import (
	"context"

	"github.com/rkm/oceancolor-matchup/internal/granule"
	"github.com/rkm/oceancolor-matchup/internal/matchup"
)

// GranuleSearcher adapts the CMR client to the matchup service's
// search interface.
type GranuleSearcher struct {
	client *Client
}

// NewGranuleSearcher wraps a CMR client as a matchup.Searcher.
func NewGranuleSearcher(client *Client) *GranuleSearcher {
	return &GranuleSearcher{client: client}
}

// FindGranules translates a matchup query into a CMR point-radius
// granule search and walks every result page.
func (s *GranuleSearcher) FindGranules(ctx context.Context, q matchup.GranuleQuery) ([]granule.Ref, error) {
	params := &SearchParams{
		ShortName: q.Product.ShortName,
		Provider:  q.Product.Provider,
		Temporal:  TemporalWindow(q.Start, q.End),
	}
	// A zero radius means a purely temporal search.
	if q.Radius > 0 {
		params.Circle = &Circle{Lon: q.Lon, Lat: q.Lat, Radius: q.Radius}
	}
	return s.client.FindGranules(ctx, params)
}
