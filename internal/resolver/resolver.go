// Package resolver builds the transitive dependency graph from root
// references. Traversal is breadth-first; fetches run under a bounded
// worker pool while all graph mutation stays on the coordinating
// goroutine. Conflicts resolve first-wins, cycles are detected along the
// active traversal path, and a valid lockfile short-circuits fetching
// entirely.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/apm-labs/apm/internal/adapter"
	"github.com/apm-labs/apm/internal/lockfile"
	"github.com/apm-labs/apm/internal/manifest"
	"github.com/apm-labs/apm/internal/ref"
)

const (
	// DefaultConcurrency bounds parallel fetches; modest by default to
	// respect host rate limits.
	DefaultConcurrency = 4
	// DefaultFetchTimeout applies per fetch call.
	DefaultFetchTimeout = 30 * time.Second
)

// Resolver resolves root references into a dependency graph.
type Resolver struct {
	Fetcher      Fetcher
	Adapter      *adapter.Adapter
	Lock         *lockfile.File // optional; nil forces full fetching
	Concurrency  int
	FetchTimeout time.Duration
	ToolVersion  string
}

// New returns a Resolver with default pool settings.
func New(f Fetcher, a *adapter.Adapter) *Resolver {
	return &Resolver{
		Fetcher:      f,
		Adapter:      a,
		Concurrency:  DefaultConcurrency,
		FetchTimeout: DefaultFetchTimeout,
	}
}

// Resolution is the finalized output of a resolve run.
type Resolution struct {
	Graph       *Graph
	Diagnostics []Diagnostic
	Lock        *lockfile.File
}

// item is one frontier entry: a reference plus the traversal context it
// was reached through.
type item struct {
	ref    ref.Reference
	parent string   // requesting node key, empty for roots
	depth  int
	path   []string // ancestor key chain along the current traversal path
}

// fetched pairs a fetch outcome with the key it was issued for.
type fetched struct {
	res *FetchResult
	err error
}

// Resolve builds the full transitive graph from roots. Non-fatal findings
// accumulate as diagnostics; a failure on a root reference aborts the run
// and returns the partial resolution alongside the error. When ctx is
// canceled, in-flight fetches finish, the frontier stops advancing, and
// the partial graph plus diagnostics are returned with ctx's error.
func (rv *Resolver) Resolve(ctx context.Context, roots []ref.Reference) (*Resolution, error) {
	logger := log.FromContext(ctx)

	res := &Resolution{Graph: NewGraph()}
	failed := make(map[string]error)

	queue := make([]item, 0, len(roots))
	for _, r := range roots {
		res.Graph.Roots = append(res.Graph.Roots, r.Key().String())
		queue = append(queue, item{ref: r})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			rv.finishLock(res)
			return res, err
		}

		wave := queue
		queue = nil

		results := rv.fetchWave(ctx, res.Graph, failed, wave)

		for _, it := range wave {
			key := it.ref.Key().String()

			// True cycle: the key is an ancestor on this traversal path.
			// Break the edge; both nodes stay in the graph.
			if contains(it.path, key) {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{
					Kind:   DiagCycle,
					Key:    key,
					Parent: it.parent,
					Detail: fmt.Sprintf("dependency cycle via %s", it.parent),
				})
				continue
			}

			if node := res.Graph.Node(key); node != nil {
				rv.revisit(res, node, it)
				linkChild(res.Graph, it.parent, key)
				continue
			}

			if prev, ok := failed[key]; ok {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{
					Kind: DiagFetchFailure, Key: key, Parent: it.parent,
					Detail: "previously failed for another requester",
					Fatal:  true, Err: prev,
				})
				continue
			}

			if rec, ok := rv.lockEntry(res, it); ok {
				node := rv.restoreLocked(res.Graph, it, rec)
				linkChild(res.Graph, it.parent, key)
				queue = append(queue, rv.lockedChildren(res, node, it)...)
				continue
			}

			fr, ok := results[key]
			if !ok {
				// Every cause that skips a fetch is handled by a branch
				// above, so a missing result means the wave bookkeeping is
				// out of sync. Fail the item rather than requeue it, which
				// could loop forever.
				failed[key] = fmt.Errorf("no fetch issued for %s", key)
				res.Diagnostics = append(res.Diagnostics, Diagnostic{
					Kind: DiagFetchFailure, Key: key, Parent: it.parent,
					Detail: "internal: no fetch issued for this key",
					Fatal:  true, Err: failed[key],
				})
				continue
			}

			if fr.err != nil {
				failed[key] = fr.err
				d := Diagnostic{
					Kind: DiagFetchFailure, Key: key, Parent: it.parent,
					Fatal: true, Err: fr.err,
				}
				res.Diagnostics = append(res.Diagnostics, d)
				if it.parent == "" {
					rv.finishLock(res)
					return res, fmt.Errorf("fetching root %s: %w", key, fr.err)
				}
				continue
			}

			m, err := rv.Adapter.Classify(it.ref, fr.res.Listing)
			if err != nil {
				failed[key] = err
				res.Diagnostics = append(res.Diagnostics, Diagnostic{
					Kind: DiagClassification, Key: key, Parent: it.parent,
					Fatal: true, Err: err,
				})
				if it.parent == "" {
					rv.finishLock(res)
					return res, fmt.Errorf("classifying root %s: %w", key, err)
				}
				continue
			}

			node := &Node{
				Key:            it.ref.Key(),
				Ref:            it.ref,
				Manifest:       m,
				ResolvedCommit: fr.res.Commit,
				ResolvedRef:    fr.res.Ref,
				Depth:          it.depth,
				ResolvedBy:     map[string]bool{},
			}
			if it.parent != "" {
				node.ResolvedBy[it.parent] = true
			}
			res.Graph.add(node)
			linkChild(res.Graph, it.parent, key)
			logger.Debug("resolved", "key", key, "kind", m.Kind, "commit", short(fr.res.Commit), "depth", it.depth)

			childPath := appendPath(it.path, key)
			for _, dep := range m.Dependencies {
				queue = append(queue, item{
					ref:    dep,
					parent: key,
					depth:  it.depth + 1,
					path:   childPath,
				})
			}
		}
	}

	rv.finishLock(res)
	return res, nil
}

// fetchWave issues one bounded, concurrent fetch per distinct unseen key
// in the wave. Results are applied later by the coordinator; workers never
// touch the graph.
func (rv *Resolver) fetchWave(ctx context.Context, g *Graph, failed map[string]error, wave []item) map[string]fetched {
	type job struct {
		key string
		r   ref.Reference
	}
	var jobs []job
	claimed := map[string]bool{}
	for _, it := range wave {
		key := it.ref.Key().String()
		if claimed[key] || g.Node(key) != nil {
			continue
		}
		if _, ok := failed[key]; ok {
			continue
		}
		if contains(it.path, key) {
			continue
		}
		if _, ok := rv.lockLookup(it); ok {
			continue
		}
		claimed[key] = true
		jobs = append(jobs, job{key: key, r: it.ref})
	}
	if len(jobs) == 0 {
		return nil
	}

	results := make(map[string]fetched, len(jobs))
	var (
		grp, gctx = errgroup.WithContext(ctx)
		out       = make([]fetched, len(jobs))
	)
	limit := rv.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	grp.SetLimit(limit)

	for i, j := range jobs {
		grp.Go(func() error {
			out[i] = rv.fetchOne(gctx, j.r)
			return nil
		})
	}
	_ = grp.Wait()

	for i, j := range jobs {
		results[j.key] = out[i]
	}
	return results
}

// fetchOne runs a single fetch under the per-fetch timeout, retrying once
// when the timeout itself expires.
func (rv *Resolver) fetchOne(ctx context.Context, r ref.Reference) fetched {
	timeout := rv.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		fctx, cancel := context.WithTimeout(ctx, timeout)
		res, err := rv.Fetcher.Fetch(fctx, r)
		cancel()
		if err == nil {
			return fetched{res: res}
		}
		lastErr = err
		// Only a timed-out fetch earns a retry; the parent context being
		// done, or a definitive transport error, does not.
		if ctx.Err() != nil || fctx.Err() != context.DeadlineExceeded {
			break
		}
	}
	return fetched{err: lastErr}
}

// revisit handles a reference whose key is already resolved: record the
// extra parent and report a conflict when the constraints disagree.
// The earliest-resolved node always wins.
func (rv *Resolver) revisit(res *Resolution, node *Node, it item) {
	if it.parent != "" {
		node.ResolvedBy[it.parent] = true
	}
	if constraintsCompatible(it.ref.Constraint, node.Ref.Constraint, node.ResolvedRef, node.ResolvedCommit) {
		return
	}
	loser := it.parent
	if loser == "" {
		loser = "root input"
	}
	res.Diagnostics = append(res.Diagnostics, Diagnostic{
		Kind:   DiagConflict,
		Key:    node.Key.String(),
		Parent: it.parent,
		Detail: fmt.Sprintf("resolved at %q, but %s requested %q; first wins",
			nonEmpty(node.Ref.Constraint, "latest"), loser, nonEmpty(it.ref.Constraint, "latest")),
	})
}

// lockLookup returns the lock record for an item when one exists and is
// still valid for the requested constraint.
func (rv *Resolver) lockLookup(it item) (lockfile.Record, bool) {
	rec, ok := rv.Lock.Lookup(it.ref.Key().String())
	if !ok || rec.ResolvedCommit == "" {
		return lockfile.Record{}, false
	}
	if !lockValid(rec, it.ref.Constraint) {
		return lockfile.Record{}, false
	}
	return rec, true
}

// lockEntry is lockLookup plus a staleness diagnostic when an entry exists
// but no longer matches; stale entries are re-resolved, never reused.
func (rv *Resolver) lockEntry(res *Resolution, it item) (lockfile.Record, bool) {
	rec, ok := rv.Lock.Lookup(it.ref.Key().String())
	if !ok || rec.ResolvedCommit == "" {
		return lockfile.Record{}, false
	}
	if !lockValid(rec, it.ref.Constraint) {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind: DiagLockStale, Key: rec.Key, Parent: it.parent,
			Detail: fmt.Sprintf("locked at %q but %q requested; re-resolving",
				rec.ResolvedRef, it.ref.Constraint),
		})
		return lockfile.Record{}, false
	}
	return rec, true
}

// restoreLocked creates a graph node from a lockfile record without
// fetching. The record carries the classified manifest identity, so the
// restored node compiles and prints exactly as the original did; only
// records written before names were persisted fall back to a synthesized
// name.
func (rv *Resolver) restoreLocked(g *Graph, it item, rec lockfile.Record) *Node {
	name := rec.Name
	if name == "" {
		n, err := manifest.Normalize(it.ref.DisplayName())
		if err != nil {
			n = rec.Key
		}
		name = n
	}
	var cats []manifest.Category
	for _, c := range rec.Categories {
		cats = append(cats, manifest.Category(c))
	}
	node := &Node{
		Key: it.ref.Key(),
		Ref: it.ref,
		Manifest: &manifest.Manifest{
			Name:       name,
			Version:    nonEmpty(rec.Version, manifest.UnversionedSentinel),
			Kind:       manifest.ParseKind(rec.Kind),
			Categories: cats,
		},
		ResolvedCommit: rec.ResolvedCommit,
		ResolvedRef:    rec.ResolvedRef,
		Depth:          it.depth,
		ResolvedBy:     map[string]bool{},
		FromLock:       true,
	}
	if it.parent != "" {
		node.ResolvedBy[it.parent] = true
	}
	g.add(node)
	return node
}

// lockedChildren rebuilds a locked node's outgoing edges from the lockfile
// records that name it as a parent.
func (rv *Resolver) lockedChildren(res *Resolution, node *Node, it item) []item {
	key := node.Key.String()
	childPath := appendPath(it.path, key)
	var out []item
	for _, rec := range rv.Lock.DependentsOf(key) {
		childRef, err := rec.Reference()
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind: DiagLockStale, Key: rec.Key, Parent: key,
				Detail: fmt.Sprintf("unusable lock record: %v; re-resolve to repair", err),
			})
			continue
		}
		out = append(out, item{
			ref:    childRef,
			parent: key,
			depth:  it.depth + 1,
			path:   childPath,
		})
	}
	return out
}

// finishLock derives the lockfile from the finalized graph.
func (rv *Resolver) finishLock(res *Resolution) {
	lf := lockfile.New(rv.ToolVersion)
	for _, n := range res.Graph.LeavesFirst() {
		var parents []string
		for p := range n.ResolvedBy {
			parents = append(parents, p)
		}
		sort.Strings(parents)
		var cats []string
		for _, c := range n.Manifest.Categories {
			cats = append(cats, string(c))
		}
		lf.Add(lockfile.Record{
			Key:            n.Key.String(),
			Name:           n.Manifest.Name,
			RepoURL:        n.Ref.RepoPath(),
			Host:           n.Key.Host,
			Subpath:        n.Key.Subpath,
			ResolvedCommit: n.ResolvedCommit,
			ResolvedRef:    n.ResolvedRef,
			Version:        n.Manifest.Version,
			Kind:           n.Manifest.Kind.String(),
			Categories:     cats,
			Depth:          n.Depth,
			ResolvedBy:     parents,
		})
	}
	res.Lock = lf
}

// lockValid reports whether a lock record satisfies a requested
// constraint. An empty constraint accepts whatever was locked.
func lockValid(rec lockfile.Record, constraint string) bool {
	if constraint == "" {
		return true
	}
	if constraint == rec.ResolvedRef || constraint == rec.ResolvedCommit {
		return true
	}
	return semverEqual(constraint, rec.ResolvedRef)
}

// constraintsCompatible reports whether a new constraint is satisfied by
// an already-resolved node.
func constraintsCompatible(requested, winning, resolvedRef, resolvedCommit string) bool {
	if requested == "" || requested == winning {
		return true
	}
	if requested == resolvedRef || requested == resolvedCommit {
		return true
	}
	return semverEqual(requested, winning) || semverEqual(requested, resolvedRef)
}

// semverEqual reports whether two constraint strings parse as the same
// semantic version (so "v1.2.0" and "1.2.0" do not conflict).
func semverEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return false
	}
	return va.Equal(vb)
}

func linkChild(g *Graph, parent, child string) {
	if parent == "" {
		return
	}
	p := g.Node(parent)
	if p == nil {
		return
	}
	for _, c := range p.Children {
		if c == child {
			return
		}
	}
	p.Children = append(p.Children, child)
}

func contains(path []string, key string) bool {
	for _, p := range path {
		if p == key {
			return true
		}
	}
	return false
}

// appendPath copies the ancestor chain; items share slices across waves,
// so appending in place would corrupt sibling paths.
func appendPath(path []string, key string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, key)
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func short(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
