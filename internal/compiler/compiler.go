// Package compiler merges per-package content fragments into target
// output artifacts. The walk is leaves-first: content from a node closer
// to a root is appended after the content it depends on, so dependents
// read as overriding or augmenting their dependencies.
package compiler

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/apm-labs/apm/internal/manifest"
	"github.com/apm-labs/apm/internal/resolver"
)

// Target identifies one compilation output. Skill-bearing targets receive
// skill content; all others receive instruction content.
type Target struct {
	ID     string
	Skills bool
}

// The default compilation targets.
var (
	// TargetAgents is the generic instruction artifact (AGENTS.md-style).
	TargetAgents = Target{ID: "agents"}
	// TargetSkills is the native skill artifact.
	TargetSkills = Target{ID: "skills", Skills: true}
)

// DefaultTargets compiles both instruction and skill artifacts.
var DefaultTargets = []Target{TargetAgents, TargetSkills}

// ContentUnit is one mergeable fragment produced by a node for a target.
// Units are ephemeral; they exist only during a compile run.
type ContentUnit struct {
	// Pattern is the opaque applicability pattern fragments are grouped
	// under (e.g. "**/*.py"). Grouping is by exact string, never by glob
	// expansion.
	Pattern string
	Body    string
}

// ContentProvider supplies the fragments for a node and target. Content
// access is the provider's concern; the compiler never touches storage.
type ContentProvider interface {
	ListContentUnits(nodeKey string, target Target) ([]ContentUnit, error)
}

// Fragment is one merged unit with provenance.
type Fragment struct {
	// Source names the contributing package.
	Source string
	// NodeKey is the contributing node's normalized key.
	NodeKey string
	Body    string
}

// Section is the merged content for one applicability pattern, in
// leaves-first order.
type Section struct {
	Pattern   string
	Fragments []Fragment
}

// Artifact is the final merged output for one target, regenerated in full
// on every compile.
type Artifact struct {
	Target   Target
	Sections []Section
}

// MergeWarning reports two unrelated nodes declaring materially different
// bodies under the same pattern. Layering between an ancestor and its
// dependency is intentional and never warned about.
type MergeWarning struct {
	Pattern string
	Keys    [2]string
}

// String renders the warning.
func (w MergeWarning) String() string {
	return fmt.Sprintf("pattern %q declared by unrelated packages %s and %s", w.Pattern, w.Keys[0], w.Keys[1])
}

// Compile walks the resolved graph leaves-first and merges each node's
// content units into one artifact per requested target. Identical
// fragments from the same node are deduplicated; identical text from two
// distinct packages is preserved. Given the same graph and content,
// output is byte-identical across runs.
func Compile(g *resolver.Graph, provider ContentProvider, targets []Target) (map[string]*Artifact, []MergeWarning, error) {
	artifacts := make(map[string]*Artifact, len(targets))
	var warnings []MergeWarning

	order := g.LeavesFirst()

	for _, target := range targets {
		art := &Artifact{Target: target}
		index := map[string]int{}   // pattern -> section index
		seen := map[string]bool{}   // nodeKey NUL pattern NUL body
		warned := map[string]bool{} // pattern NUL keyA NUL keyB

		for _, node := range order {
			if !feedsTarget(node, target) {
				continue
			}
			key := node.Key.String()
			units, err := provider.ListContentUnits(key, target)
			if err != nil {
				return nil, warnings, fmt.Errorf("listing content for %s: %w", key, err)
			}

			for _, u := range units {
				// Dedup by node identity: the same node reached through
				// several parents still contributes each unit once.
				sig := key + "\x00" + u.Pattern + "\x00" + u.Body
				if seen[sig] {
					continue
				}
				seen[sig] = true

				si, ok := index[u.Pattern]
				if !ok {
					si = len(art.Sections)
					index[u.Pattern] = si
					art.Sections = append(art.Sections, Section{Pattern: u.Pattern})
				}
				sec := &art.Sections[si]

				for _, prev := range sec.Fragments {
					if prev.NodeKey == key || prev.Body == u.Body {
						continue
					}
					if g.Related(prev.NodeKey, key) {
						continue
					}
					wsig := u.Pattern + "\x00" + prev.NodeKey + "\x00" + key
					if warned[wsig] {
						continue
					}
					warned[wsig] = true
					warnings = append(warnings, MergeWarning{
						Pattern: u.Pattern,
						Keys:    [2]string{prev.NodeKey, key},
					})
				}

				sec.Fragments = append(sec.Fragments, Fragment{
					Source:  node.Manifest.Name,
					NodeKey: key,
					Body:    u.Body,
				})
			}
		}

		artifacts[target.ID] = art
	}

	return artifacts, warnings, nil
}

// CompileWithLog is Compile plus summary logging through the given logger.
func CompileWithLog(g *resolver.Graph, provider ContentProvider, targets []Target, logger *log.Logger) (map[string]*Artifact, []MergeWarning, error) {
	artifacts, warnings, err := Compile(g, provider, targets)
	if err != nil {
		return artifacts, warnings, err
	}
	for _, t := range targets {
		art := artifacts[t.ID]
		logger.Debug("compiled", "target", t.ID, "sections", len(art.Sections))
	}
	for _, w := range warnings {
		logger.Warn("merge", "pattern", w.Pattern, "packages", w.Keys[0]+", "+w.Keys[1])
	}
	return artifacts, warnings, nil
}

// feedsTarget routes a node's content by manifest kind. Instruction-only
// kinds feed instruction targets, skill kinds feed skill-bearing targets,
// hybrid feeds both. Plugins feed whatever their capability categories
// cover.
func feedsTarget(n *resolver.Node, t Target) bool {
	switch n.Manifest.Kind {
	case manifest.KindSkill:
		return t.Skills
	case manifest.KindHybrid:
		return true
	case manifest.KindPlugin:
		if t.Skills {
			return hasCategory(n.Manifest, manifest.CategorySkills)
		}
		return true
	case manifest.KindStandard, manifest.KindCollection, manifest.KindVirtualFile:
		return !t.Skills
	default:
		return !t.Skills
	}
}

func hasCategory(m *manifest.Manifest, c manifest.Category) bool {
	for _, cat := range m.Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// Render serializes the artifact as a markdown document: one section per
// pattern, each fragment preceded by a provenance header naming its
// source package. Output is deterministic.
func (a *Artifact) Render() string {
	var b strings.Builder
	for i, sec := range a.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "<!-- apm:pattern %s -->\n", sec.Pattern)
		for _, f := range sec.Fragments {
			fmt.Fprintf(&b, "<!-- apm:source %s -->\n", f.Source)
			b.WriteString(f.Body)
			if !strings.HasSuffix(f.Body, "\n") {
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
