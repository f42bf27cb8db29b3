// Package blob implements the hierarchical key→bytes store of spec.md §4.A:
// a filesystem-backed map from a '/'-delimited path to a byte sequence,
// with atomic put via write-temp-then-rename. Directories are implicit;
// there is no cross-path atomicity here — higher layers (internal/timeline)
// build transactions on top.
package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/strataql/strata/internal/errs"
)

// ErrNotFound is returned by Get/Reader when path does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store maps paths under root to byte sequences on the local filesystem.
type Store struct {
	root string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.IOError("blob.Open", err)
	}
	return &Store{root: filepath.Clean(dir)}, nil
}

func (s *Store) resolve(path string) (string, error) {
	if path == "" || strings.Contains(path, "..") {
		return "", errs.BadInput("blob.resolve", errors.New("invalid path"))
	}
	clean := filepath.FromSlash(strings.TrimPrefix(path, "/"))
	return filepath.Join(s.root, clean), nil
}

// Put atomically writes data at path: write to a sibling temp file, fsync,
// then rename over any existing blob.
func (s *Store) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errs.Aborted("blob.Put", err)
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.IOError("blob.Put", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return errs.IOError("blob.Put", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.IOError("blob.Put", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.IOError("blob.Put", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.IOError("blob.Put", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return errs.IOError("blob.Put", err)
	}
	return nil
}

// Get reads the blob at path in full.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Aborted("blob.Get", err)
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errs.IOError("blob.Get", err)
	}
	return data, nil
}

// Reader opens path for streaming reads without loading it fully, used by
// the stripe decoder's predicate pruning to avoid reading pages it can
// skip past the footer.
func (s *Store) Reader(path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errs.IOError("blob.Reader", err)
	}
	return f, nil
}

// Delete removes the blob at path. Deleting a missing path is not an error
// (garbage collection may race a concurrent delete of the same orphan).
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return errs.Aborted("blob.Delete", err)
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errs.IOError("blob.Delete", err)
	}
	return nil
}

// Exists reports whether a blob exists at path.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errs.IOError("blob.Exists", err)
	}
	return true, nil
}

// List returns every blob path (relative to root, '/'-delimited) whose
// path starts with prefix, sorted lexicographically.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Aborted("blob.List", err)
	}
	base, err := s.resolve(prefix)
	if err != nil && prefix != "" {
		return nil, err
	}
	if prefix == "" {
		base = s.root
	}

	// base may itself be a partial filename prefix (e.g. "stripes/t/ab"
	// matching "stripes/t/abcd"), so walk the parent directory and filter.
	walkDir := base
	if fi, statErr := os.Stat(base); statErr != nil || !fi.IsDir() {
		walkDir = filepath.Dir(base)
	}

	var out []string
	err = filepath.WalkDir(walkDir, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		if !strings.HasPrefix(p, base) {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return relErr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IOError("blob.List", err)
	}
	sort.Strings(out)
	return out, nil
}
