package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/apm-labs/apm/internal/ref"
	"github.com/apm-labs/apm/internal/resolver"
)

func writeRepo(t *testing.T, root, repoPath string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(repoPath))
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func mustRef(t *testing.T, raw string) ref.Reference {
	t.Helper()
	r, err := ref.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return r
}

var commitRe = regexp.MustCompile(`^[a-f0-9]{40}$`)

func TestLocalFetch(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "github.com/octo/tools", map[string]string{
		"apm.yml":   "name: tools\n",
		"README.md": "# tools\n",
	})

	fr, err := NewLocal(root).Fetch(context.Background(), mustRef(t, "octo/tools"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !commitRe.MatchString(fr.Commit) {
		t.Errorf("Commit = %q, want 40 hex chars", fr.Commit)
	}
	if fr.Ref != "local" {
		t.Errorf("Ref = %q, want %q", fr.Ref, "local")
	}
	if !fr.Listing.Has("apm.yml") || !fr.Listing.Has("README.md") {
		t.Errorf("listing paths = %v", fr.Listing.Paths())
	}
}

func TestLocalFetchCommitTracksContent(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "github.com/octo/tools", map[string]string{"apm.yml": "name: tools\n"})
	local := NewLocal(root)
	r := mustRef(t, "octo/tools")

	a, err := local.Fetch(context.Background(), r)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	b, err := local.Fetch(context.Background(), r)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if a.Commit != b.Commit {
		t.Errorf("unchanged tree changed commit: %q vs %q", a.Commit, b.Commit)
	}

	writeRepo(t, root, "github.com/octo/tools", map[string]string{"apm.yml": "name: tools\nversion: 2.0.0\n"})
	c, err := local.Fetch(context.Background(), r)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if c.Commit == a.Commit {
		t.Error("modified tree kept the same commit")
	}
}

func TestLocalFetchVirtualFile(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "github.com/octo/copilot", map[string]string{
		"prompts/review.prompt.md": "Review this.\n",
		"apm.yml":                  "name: copilot\n",
	})

	fr, err := NewLocal(root).Fetch(context.Background(), mustRef(t, "octo/copilot/prompts/review.prompt.md"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !fr.Listing.IsFile() {
		t.Error("virtual fetch did not produce a single-file listing")
	}
	if !fr.Listing.Has("prompts/review.prompt.md") {
		t.Errorf("listing paths = %v", fr.Listing.Paths())
	}
}

func TestLocalFetchNotFound(t *testing.T) {
	local := NewLocal(t.TempDir())
	_, err := local.Fetch(context.Background(), mustRef(t, "octo/missing"))
	if !errors.Is(err, resolver.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLocalFetchSkipsHidden(t *testing.T) {
	root := t.TempDir()
	writeRepo(t, root, "github.com/octo/tools", map[string]string{
		"apm.yml":          "name: tools\n",
		".git/config":      "noise",
		".hidden":          "noise",
		"docs/.secret.yml": "noise",
	})

	fr, err := NewLocal(root).Fetch(context.Background(), mustRef(t, "octo/tools"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for _, p := range fr.Listing.Paths() {
		if p != "apm.yml" {
			t.Errorf("hidden file leaked into listing: %q", p)
		}
	}
}
