// Package source provides filesystem-backed implementations of the
// resolver's Fetcher and the compiler's ContentProvider. A store root
// lays repositories out as <root>/<host>/<owner>/<repo>, which serves
// local development, mirrored checkouts, and tests without network
// access.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apm-labs/apm/internal/adapter"
	"github.com/apm-labs/apm/internal/ref"
	"github.com/apm-labs/apm/internal/resolver"
)

// Local fetches package content from a store directory.
type Local struct {
	Root string
}

// NewLocal returns a Local store rooted at root.
func NewLocal(root string) *Local { return &Local{Root: root} }

// Fetch reads the referenced repository (or single virtual file) from the
// store. The returned commit is a digest of the fetched content, so an
// unchanged tree always resolves to the same commit and the lockfile
// round-trips.
func (s *Local) Fetch(ctx context.Context, r ref.Reference) (*resolver.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.Root, r.Host, r.Owner, r.Repo)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", r.Key(), resolver.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", r.Key(), err)
	}

	if r.IsVirtualFile() {
		path := filepath.Join(dir, filepath.FromSlash(r.Subpath))
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%s: %w", r.Key(), resolver.ErrNotFound)
			}
			return nil, fmt.Errorf("reading %s: %w", r.Key(), err)
		}
		return &resolver.FetchResult{
			Commit:  digest(map[string][]byte{r.Subpath: data}),
			Ref:     refName(r),
			Listing: adapter.NewFileListing(r.Subpath, data),
		}, nil
	}

	files, err := readTree(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.Key(), err)
	}
	return &resolver.FetchResult{
		Commit:  digest(files),
		Ref:     refName(r),
		Listing: adapter.NewListing(files),
	}, nil
}

// readTree loads every non-hidden file under dir, keyed by slash-relative
// path.
func readTree(ctx context.Context, dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(fi.Name(), ".") && fi.Name() != "." {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// digest computes a commit-shaped content hash over the sorted file set.
func digest(files map[string][]byte) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write(files[p])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:40]
}

func refName(r ref.Reference) string {
	if r.Constraint != "" {
		return r.Constraint
	}
	return "local"
}
