// Package objectstore stores objects as files under a root directory, one
// directory per bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// FS is a filesystem-backed object store. Writes go to a temporary file in
// the destination directory and are renamed into place, so readers never
// observe a partially written object.
type FS struct {
	root   string
	logger *slog.Logger
}

// NewFS creates the root directory if needed and returns a store over it.
func NewFS(root string, logger *slog.Logger) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	return &FS{root: root, logger: logger}, nil
}

// Get returns the object's bytes or domain.ErrObjectNotFound.
func (s *FS) Get(_ context.Context, bucket, key string) ([]byte, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, domain.ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Put replaces the object atomically.
func (s *FS) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := writeAtomic(p, data); err != nil {
		return fmt.Errorf("write %s/%s: %w", bucket, key, err)
	}
	s.logger.Debug("object written", "bucket", bucket, "key", key, "bytes", len(data))
	return nil
}

// Copy replaces dstKey with the content of srcKey in the same bucket.
func (s *FS) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	data, err := s.Get(ctx, bucket, srcKey)
	if err != nil {
		return err
	}
	return s.Put(ctx, bucket, dstKey, data)
}

// Delete removes the object. Deleting a missing object is not an error.
func (s *FS) Delete(_ context.Context, bucket, key string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// List returns the sorted keys in bucket that start with prefix.
func (s *FS) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	dir, err := s.path(bucket, "")
	if err != nil {
		return nil, err
	}
	var keys []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || isTemp(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	slices.Sort(keys)
	return keys, nil
}

// path maps bucket and key to a file under root, rejecting keys that would
// escape the bucket directory.
func (s *FS) path(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	dir := filepath.Join(s.root, bucket)
	if key == "" {
		return dir, nil
	}
	p := filepath.Join(dir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return p, nil
}

const tempPrefix = ".tmp-"

func isTemp(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

func writeAtomic(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+filepath.Base(p)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // sync error takes precedence
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, p)
}
