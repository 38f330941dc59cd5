package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rkm/oceancolor-matchup/internal/granule"
)

// FileSystem archives granules as plain files under a root directory,
// distributed mission/level/year/doy the way the Ocean Color site lays
// them out, so no single directory accumulates the whole archive.
type FileSystem struct {
	root string
}

// NewFileSystem creates a filesystem backend rooted at an existing
// directory.
func NewFileSystem(root string) (*FileSystem, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid storage root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", root)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	return &FileSystem{root: abs}, nil
}

func (f *FileSystem) path(name string) (string, error) {
	rel, err := granule.StoragePath(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(rel)), nil
}

// Get returns the local path of an archived granule.
func (f *FileSystem) Get(ctx context.Context, name string) (string, error) {
	path, err := f.path(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("granule %s: %w", name, ErrNotFound)
		}
		return "", err
	}
	return path, nil
}

// Put writes granule content into the archive layout. The write goes
// through a temp file so a failed download never leaves a truncated
// granule behind.
func (f *FileSystem) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	path, err := f.path(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create granule directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write granule %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close granule %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to place granule %s: %w", name, err)
	}
	return path, nil
}

// Contains reports whether the granule file exists in the archive.
func (f *FileSystem) Contains(ctx context.Context, name string) bool {
	path, err := f.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
