package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// Scratch is the per-run local namespace Stage 1 downloads drive files into
// before they are durably stored. Writes are atomic (write-to-temp, then
// rename) so a crash mid-write never leaves a partially-written file behind.
type Scratch struct {
	dir string
}

// NewScratch constructs a scratch namespace rooted at dir, creating it if
// necessary.
func NewScratch(dir string) (*Scratch, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch namespace's root directory.
func (s *Scratch) Dir() string {
	return s.dir
}

// Put writes data atomically under key, returning the local file path as URL.
func (s *Scratch) Put(ctx context.Context, key string, data []byte, mimeType string) (ingest.StoredObject, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ingest.StoredObject{}, fmt.Errorf("create scratch subdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return ingest.StoredObject{}, fmt.Errorf("create scratch temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ingest.StoredObject{}, fmt.Errorf("write scratch temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ingest.StoredObject{}, fmt.Errorf("close scratch temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ingest.StoredObject{}, fmt.Errorf("rename scratch file: %w", err)
	}
	return ingest.StoredObject{Key: key, URL: path, Size: int64(len(data)), MimeType: mimeType}, nil
}

// Get reads a file back by key.
func (s *Scratch) Get(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
}

// Delete removes a single scratch file.
func (s *Scratch) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List walks the scratch tree under prefix and returns relative keys.
func (s *Scratch) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Join(s.dir, filepath.FromSlash(prefix))
	var keys []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.dir, path)
		if relErr != nil {
			return relErr
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return keys, nil
}

// Purge removes every file under the scratch root, used between pipeline
// runs so stale downloads never leak into the next sync.
func (s *Scratch) Purge() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

var _ ingest.ObjectStore = (*Scratch)(nil)
