package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rkm/oceancolor-matchup/internal/granule"
)

// MinIOConfig holds MinIO connection settings.
type MinIOConfig struct {
	Endpoint  string // e.g., "localhost:9000"
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// CacheDir is where objects are staged for opening; the netCDF
	// reader needs a real file.
	CacheDir string
}

// MinIO archives granules as objects, one per granule, keyed by the
// standard archive layout. Reads are staged into a local cache
// directory.
type MinIO struct {
	client   *minio.Client
	bucket   string
	cacheDir string
}

// NewMinIO creates a MinIO-backed granule archive, creating the bucket
// if needed.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &MinIO{
		client:   client,
		bucket:   cfg.Bucket,
		cacheDir: cfg.CacheDir,
	}, nil
}

func (m *MinIO) key(name string) (string, error) {
	return granule.StoragePath(name)
}

func (m *MinIO) cachePath(key string) string {
	return filepath.Join(m.cacheDir, filepath.FromSlash(key))
}

// Get stages the granule object into the cache directory and returns
// the staged path.
func (m *MinIO) Get(ctx context.Context, name string) (string, error) {
	key, err := m.key(name)
	if err != nil {
		return "", err
	}

	local := m.cachePath(key)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return "", fmt.Errorf("granule %s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	if err := m.stage(local, obj); err != nil {
		return "", err
	}
	return local, nil
}

// Put uploads the granule object and leaves a staged copy behind for
// immediate opening.
func (m *MinIO) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	key, err := m.key(name)
	if err != nil {
		return "", err
	}

	local := m.cachePath(key)
	if err := m.stage(local, r); err != nil {
		return "", err
	}

	f, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("failed to reopen staged granule: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat staged granule: %w", err)
	}

	if _, err := m.client.PutObject(ctx, m.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: "application/x-netcdf",
	}); err != nil {
		return "", fmt.Errorf("failed to upload granule %s: %w", name, err)
	}
	return local, nil
}

// Contains reports whether the granule object exists.
func (m *MinIO) Contains(ctx context.Context, name string) bool {
	key, err := m.key(name)
	if err != nil {
		return false
	}
	if _, err := os.Stat(m.cachePath(key)); err == nil {
		return true
	}
	_, err = m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	return err == nil
}

func (m *MinIO) stage(local string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(local), "."+filepath.Base(local)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to stage granule: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close staged granule: %w", err)
	}
	return os.Rename(tmp.Name(), local)
}
