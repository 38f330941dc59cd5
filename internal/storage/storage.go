// Package storage keeps downloaded granules in a local or object-store
// backed archive and fetches missing ones from the distribution site.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrNotFound is returned when a granule is not present in a backend.
var ErrNotFound = errors.New("granule not in storage")

// Backend stores granule files under their standard archive layout and
// hands out local paths for opening.
type Backend interface {
	// Get returns a local path for the named granule, or ErrNotFound.
	Get(ctx context.Context, name string) (string, error)

	// Put stores the granule content and returns a local path for it.
	Put(ctx context.Context, name string, r io.Reader) (string, error)

	// Contains reports whether the granule is already stored.
	Contains(ctx context.Context, name string) bool
}

// Downloader fetches granule content from the distribution site.
type Downloader interface {
	Download(ctx context.Context, filename string) (io.ReadCloser, error)
}

// Store resolves granule names to local files, downloading through the
// distribution site on a backend miss.
type Store struct {
	backend    Backend
	downloader Downloader
	download   bool
	logger     *slog.Logger
}

// NewStore creates a fetching store over the given backend. When
// download is false the store is limited to granules already archived.
func NewStore(backend Backend, downloader Downloader, download bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:    backend,
		downloader: downloader,
		download:   download,
		logger:     logger,
	}
}

// Fetch returns a local path for the named granule.
func (s *Store) Fetch(ctx context.Context, name string) (string, error) {
	path, err := s.backend.Get(ctx, name)
	if err == nil {
		s.logger.DebugContext(ctx, "granule served from storage",
			slog.String("granule", name),
		)
		return path, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("storage lookup of %s failed: %w", name, err)
	}

	if !s.download {
		s.logger.InfoContext(ctx, "granule not archived and downloads are off",
			slog.String("granule", name),
		)
		return "", fmt.Errorf("granule %s: %w", name, ErrNotFound)
	}

	body, err := s.downloader.Download(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve %s: %w", name, err)
	}
	defer body.Close()

	path, err = s.backend.Put(ctx, name, body)
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", name, err)
	}

	s.logger.InfoContext(ctx, "granule downloaded and archived",
		slog.String("granule", name),
		slog.String("path", path),
	)
	return path, nil
}

// Contains reports whether the granule is already archived.
func (s *Store) Contains(ctx context.Context, name string) bool {
	return s.backend.Contains(ctx, name)
}
