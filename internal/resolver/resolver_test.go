package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/apm-labs/apm/internal/adapter"
	"github.com/apm-labs/apm/internal/ref"
)

// fakeRepos is an in-memory Fetcher keyed by normalized reference key.
type fakeRepos struct {
	repos   map[string]map[string][]byte
	fetches atomic.Int64
}

func (f *fakeRepos) Fetch(ctx context.Context, r ref.Reference) (*FetchResult, error) {
	f.fetches.Add(1)
	key := r.Key().String()
	files, ok := f.repos[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	resolved := r.Constraint
	if resolved == "" {
		resolved = "main"
	}
	return &FetchResult{
		Commit:  commitFor(key),
		Ref:     resolved,
		Listing: adapter.NewListing(files),
	}, nil
}

func commitFor(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])[:40]
}

func manifestYAML(name string, deps ...string) map[string][]byte {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nversion: 1.0.0\n", name)
	if len(deps) > 0 {
		b.WriteString("dependencies:\n  apm:\n")
		for _, d := range deps {
			fmt.Fprintf(&b, "    - %s\n", d)
		}
	}
	return map[string][]byte{"apm.yml": []byte(b.String())}
}

func newTestResolver(f *fakeRepos) *Resolver {
	return New(f, adapter.New("github.com"))
}

func mustParse(t *testing.T, raw string) ref.Reference {
	t.Helper()
	r, err := ref.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return r
}

func countKind(diags []Diagnostic, kind DiagnosticKind) int {
	n := 0
	for _, d := range diags {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func TestResolveSharedDependencySingleNode(t *testing.T) {
	f := &fakeRepos{repos: map[string]map[string][]byte{
		"github.com/octo/app":    manifestYAML("app", "octo/lib-a", "octo/lib-b"),
		"github.com/octo/lib-a":  manifestYAML("lib-a", "octo/common"),
		"github.com/octo/lib-b":  manifestYAML("lib-b", "octo/common"),
		"github.com/octo/common": manifestYAML("common"),
	}}

	res, err := newTestResolver(f).Resolve(context.Background(), []ref.Reference{mustParse(t, "octo/app")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("diagnostics = %v, want none", res.Diagnostics)
	}
	if res.Graph.Len() != 4 {
		t.Fatalf("graph has %d nodes, want 4", res.Graph.Len())
	}
	if got := f.fetches.Load(); got != 4 {
		t.Errorf("fetches = %d, want 4 (one per distinct key)", got)
	}

	common := res.Graph.Node("github.com/octo/common")
	if common == nil {
		t.Fatal("common node missing")
	}
	if common.Depth != 2 {
		t.Errorf("common depth = %d, want 2", common.Depth)
	}
	if !common.ResolvedBy["github.com/octo/lib-a"] || !common.ResolvedBy["github.com/octo/lib-b"] {
		t.Errorf("common resolved_by = %v, want both libs", common.ResolvedBy)
	}
}

func TestResolveCycleBreaksEdge(t *testing.T) {
	f := &fakeRepos{repos: map[string]map[string][]byte{
		"github.com/octo/a": manifestYAML("a", "octo/b"),
		"github.com/octo/b": manifestYAML("b", "octo/a"),
	}}

	res, err := newTestResolver(f).Resolve(context.Background(), []ref.Reference{mustParse(t, "octo/a")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := countKind(res.Diagnostics, DiagCycle); got != 1 {
		t.Fatalf("cycle diagnostics = %d, want 1: %v", got, res.Diagnostics)
	}
	if res.Graph.Len() != 2 {
		t.Errorf("graph has %d nodes, want 2 (both cycle members stay)", res.Graph.Len())
	}

	b := res.Graph.Node("github.com/octo/b")
	if len(b.Children) != 0 {
		t.Errorf("cycle edge recorded as child: %v", b.Children)
	}
	a := res.Graph.Node("github.com/octo/a")
	if len(a.Children) != 1 || a.Children[0] != "github.com/octo/b" {
		t.Errorf("a children = %v", a.Children)
	}
}

func TestResolveDiamondIsNotCycle(t *testing.T) {
	f := &fakeRepos{repos: map[string]map[string][]byte{
		"github.com/octo/app":    manifestYAML("app", "octo/left", "octo/right"),
		"github.com/octo/left":   manifestYAML("left", "octo/shared"),
		"github.com/octo/right":  manifestYAML("right", "octo/shared"),
		"github.com/octo/shared": manifestYAML("shared"),
	}}

	res, err := newTestResolver(f).Resolve(context.Background(), []ref.Reference{mustParse(t, "octo/app")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := countKind(res.Diagnostics, DiagCycle); got != 0 {
		t.Errorf("diamond produced %d cycle diagnostics", got)
	}
}

func TestResolveConflictFirstWins(t *testing.T) {
	f := &fakeRepos{repos: map[string]map[string][]byte{
		"github.com/octo/app": manifestYAML("app", "octo/lib#main", "octo/mid"),
		"github.com/octo/mid": manifestYAML("mid", "octo/lib#dev"),
		"github.com/octo/lib": manifestYAML("lib"),
	}}

	res, err := newTestResolver(f).Resolve(context.Background(), []ref.Reference{mustParse(t, "octo/app")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := countKind(res.Diagnostics, DiagConflict); got != 1 {
		t.Fatalf("conflict diagnostics = %d, want 1: %v", got, res.Diagnostics)
	}

	lib := res.Graph.Node("github.com/octo/lib")
	if lib.Ref.Constraint != "main" {
		t.Errorf("winning constraint = %q, want %q (first requested)", lib.Ref.Constraint, "main")
	}
	if !lib.ResolvedBy["github.com/octo/app"] || !lib.ResolvedBy["github.com/octo/mid"] {
		t.Errorf("lib resolved_by = %v, want both requesters", lib.ResolvedBy)
	}
}

func TestResolveEquivalentConstraintsNoConflict(t *testing.T) {
	f := &fakeRepos{repos: map[string]map[string][]byte{
		"github.com/octo/app": manifestYAML("app", "octo/lib#v1.2.0", "octo/mid"),
		"github.com/octo/mid": manifestYAML("mid", "octo/lib#1.2.0"),
		"github.com/octo/lib": manifestYAML("lib"),
	}}

	res, err := newTestResolver(f).Resolve(context.Background(), []ref.Reference{mustParse(t, "octo/app")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := countKind(res.Diagnostics, DiagConflict); got != 0 {
		t.Errorf("equivalent semver constraints produced %d conflicts: %v", got, res.Diagnostics)
	}
}

func TestResolveFetchFailureAbandonsSubtree(t *testing.T) {
	f := &fakeRepos{repos: map[string]map[string][]byte{
		"github.com/octo/app": manifestYAML("app", "octo/gone", "octo/lib"),
		"github.com/octo/lib": manifestYAML("lib"),
	}}

	res, err := newTestResolver(f).Resolve(context.Background(), []ref.Reference{mustParse(t, "octo/app")})
	if err != nil {
		t.Fatalf("Resolve: %v (non-root failures must not abort)", err)
	}

	var fail *Diagnostic
	for i, d := range res.Diagnostics {
		if d.Kind == DiagFetchFailure {
			fail = &res.Diagnostics[i]
		}
	}
	if fail == nil {
		t.Fatal("no fetch-failure diagnostic")
	}
	if !fail.Fatal {
		t.Error("fetch failure not marked fatal")
	}
	if !errors.Is(fail.Err, ErrNotFound) {
		t.Errorf("diagnostic err = %v, want ErrNotFound", fail.Err)
	}

	if res.Graph.Node("github.com/octo/lib") == nil {
		t.Error("sibling subtree abandoned along with the failed one")
	}
	if res.Graph.Len() != 2 {
		t.Errorf("graph has %d nodes, want 2", res.Graph.Len())
	}
}

func TestResolveRootFailureAborts(t *testing.T) {
	f := &fakeRepos{repos: map[string]map[string][]byte{}}

	res, err := newTestResolver(f).Resolve(context.Background(), []ref.Reference{mustParse(t, "octo/gone")})
	if err == nil {
		t.Fatal("root fetch failure did not abort")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if res == nil {
		t.Fatal("partial resolution not returned")
	}
}

func TestResolveLockfileSkipsFetching(t *testing.T) {
	repos := map[string]map[string][]byte{
		"github.com/octo/app":    manifestYAML("app", "octo/lib-a", "octo/lib-b"),
		"github.com/octo/lib-a":  manifestYAML("lib-a", "octo/common"),
		"github.com/octo/lib-b":  manifestYAML("lib-b", "octo/common"),
		"github.com/octo/common": manifestYAML("common"),
	}
	roots := []ref.Reference{mustParse(t, "octo/app")}

	first, err := newTestResolver(&fakeRepos{repos: repos}).Resolve(context.Background(), roots)
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if first.Lock.Len() != 4 {
		t.Fatalf("lock has %d records, want 4", first.Lock.Len())
	}

	f := &fakeRepos{repos: repos}
	rv := newTestResolver(f)
	rv.Lock = first.Lock
	second, err := rv.Resolve(context.Background(), roots)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	if got := f.fetches.Load(); got != 0 {
		t.Errorf("fetches with valid lockfile = %d, want 0", got)
	}
	if second.Graph.Len() != first.Graph.Len() {
		t.Errorf("restored graph has %d nodes, want %d", second.Graph.Len(), first.Graph.Len())
	}
	for key, n := range second.Graph.Nodes {
		if !n.FromLock {
			t.Errorf("node %s not restored from lock", key)
		}
		if want := first.Graph.Node(key).ResolvedCommit; n.ResolvedCommit != want {
			t.Errorf("node %s commit = %q, want %q", key, n.ResolvedCommit, want)
		}
	}

	app := second.Graph.Node("github.com/octo/app")
	if len(app.Children) != 2 {
		t.Errorf("restored root children = %v, want 2 edges", app.Children)
	}
}

func TestResolveLockRestorePreservesManifestIdentity(t *testing.T) {
	// base declares a manifest name that differs from its repo basename,
	// and tools is a plugin whose capability folders drive target routing.
	repos := map[string]map[string][]byte{
		"github.com/octo/app":  manifestYAML("app", "octo/base", "octo/tools"),
		"github.com/octo/base": manifestYAML("my-cool-name"),
		"github.com/octo/tools": {
			"plugin.json":          []byte(`{"name":"tool-pack"}`),
			"skills/lint/SKILL.md": []byte("lint skill"),
		},
	}
	roots := []ref.Reference{mustParse(t, "octo/app")}

	cold, err := newTestResolver(&fakeRepos{repos: repos}).Resolve(context.Background(), roots)
	if err != nil {
		t.Fatalf("cold Resolve: %v", err)
	}

	f := &fakeRepos{repos: repos}
	rv := newTestResolver(f)
	rv.Lock = cold.Lock
	locked, err := rv.Resolve(context.Background(), roots)
	if err != nil {
		t.Fatalf("locked Resolve: %v", err)
	}
	if got := f.fetches.Load(); got != 0 {
		t.Fatalf("fetches = %d, want 0", got)
	}

	for key, want := range cold.Graph.Nodes {
		got := locked.Graph.Node(key)
		if got == nil {
			t.Fatalf("node %s missing after restore", key)
		}
		if got.Manifest.Name != want.Manifest.Name {
			t.Errorf("node %s name = %q after restore, want %q", key, got.Manifest.Name, want.Manifest.Name)
		}
		if got.Manifest.Kind != want.Manifest.Kind {
			t.Errorf("node %s kind = %v after restore, want %v", key, got.Manifest.Kind, want.Manifest.Kind)
		}
		if len(got.Manifest.Categories) != len(want.Manifest.Categories) {
			t.Errorf("node %s categories = %v after restore, want %v",
				key, got.Manifest.Categories, want.Manifest.Categories)
		}
	}

	base := locked.Graph.Node("github.com/octo/base")
	if base.Manifest.Name != "my-cool-name" {
		t.Errorf("restored name = %q, want the declared %q", base.Manifest.Name, "my-cool-name")
	}
}

func TestResolveDuplicateRootsTerminate(t *testing.T) {
	f := &fakeRepos{repos: map[string]map[string][]byte{
		"github.com/octo/app": manifestYAML("app"),
	}}

	roots := []ref.Reference{mustParse(t, "octo/app"), mustParse(t, "octo/app")}
	res, err := newTestResolver(f).Resolve(context.Background(), roots)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Graph.Len() != 1 {
		t.Errorf("graph has %d nodes, want 1", res.Graph.Len())
	}
	if got := f.fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestResolveStaleLockRefetches(t *testing.T) {
	repos := map[string]map[string][]byte{
		"github.com/octo/app": manifestYAML("app"),
	}
	first, err := newTestResolver(&fakeRepos{repos: repos}).Resolve(
		context.Background(), []ref.Reference{mustParse(t, "octo/app#main")})
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	// Same key, different constraint: the lock entry no longer satisfies it.
	f := &fakeRepos{repos: repos}
	rv := newTestResolver(f)
	rv.Lock = first.Lock
	second, err := rv.Resolve(context.Background(), []ref.Reference{mustParse(t, "octo/app#dev")})
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	if got := countKind(second.Diagnostics, DiagLockStale); got != 1 {
		t.Errorf("stale diagnostics = %d, want 1: %v", got, second.Diagnostics)
	}
	if got := f.fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1 (stale entry re-resolved)", got)
	}
	if second.Graph.Node("github.com/octo/app").FromLock {
		t.Error("stale entry silently reused")
	}
}

func TestResolveLockDeterministic(t *testing.T) {
	repos := map[string]map[string][]byte{
		"github.com/octo/app": manifestYAML("app", "octo/lib"),
		"github.com/octo/lib": manifestYAML("lib"),
	}
	roots := []ref.Reference{mustParse(t, "octo/app")}

	a, err := newTestResolver(&fakeRepos{repos: repos}).Resolve(context.Background(), roots)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := newTestResolver(&fakeRepos{repos: repos}).Resolve(context.Background(), roots)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	ra, rb := a.Lock.Sorted(), b.Lock.Sorted()
	if len(ra) != len(rb) {
		t.Fatalf("record counts differ: %d vs %d", len(ra), len(rb))
	}
	for i := range ra {
		if ra[i].Key != rb[i].Key || ra[i].ResolvedCommit != rb[i].ResolvedCommit || ra[i].Depth != rb[i].Depth {
			t.Errorf("record %d differs: %+v vs %+v", i, ra[i], rb[i])
		}
	}
}

func TestResolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeRepos{repos: map[string]map[string][]byte{
		"github.com/octo/app": manifestYAML("app"),
	}}
	res, err := newTestResolver(f).Resolve(ctx, []ref.Reference{mustParse(t, "octo/app")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("partial resolution not returned on cancellation")
	}
}
