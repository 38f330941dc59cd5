package matchup

import (
	"context"
	"fmt"

	"github.com/rkm/oceancolor-matchup/internal/granule"
	"github.com/rkm/oceancolor-matchup/internal/storage"
)

// StoreFetcher fetches granules through a storage.Store and opens them
// as datasets.
type StoreFetcher struct {
	store *storage.Store
}

// NewStoreFetcher wraps a store as a Fetcher.
func NewStoreFetcher(store *storage.Store) *StoreFetcher {
	return &StoreFetcher{store: store}
}

// Fetch retrieves the named granule (downloading it on an archive
// miss) and opens it for pixel access.
func (f *StoreFetcher) Fetch(ctx context.Context, ref granule.Ref) (Granule, error) {
	path, err := f.store.Fetch(ctx, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref.Name, err)
	}
	return granule.Open(path)
}
