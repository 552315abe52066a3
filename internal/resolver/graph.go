package resolver

import (
	"sort"

	"github.com/apm-labs/apm/internal/manifest"
	"github.com/apm-labs/apm/internal/ref"
)

// Node is one resolved package instance. Nodes are created once per
// normalized key and mutated only by the resolving coordinator.
type Node struct {
	Key      ref.Key
	Ref      ref.Reference // the reference that first resolved this node
	Manifest *manifest.Manifest

	ResolvedCommit string
	ResolvedRef    string

	// Depth is the distance from the nearest root (roots are depth 0).
	Depth int

	// ResolvedBy is the set of parent keys that requested this node.
	// Roots carry an empty set.
	ResolvedBy map[string]bool

	// Children are the keys of this node's resolved dependencies.
	Children []string

	// FromLock marks nodes restored from the lockfile without fetching.
	FromLock bool

	seq int // insertion order, used as a deterministic tie-break
}

// Graph is the key-addressed arena of resolved nodes. Edges are key
// references, so cycles are representable; the recorded cycle diagnostics
// are what keep any single traversal finite.
type Graph struct {
	Nodes map[string]*Node
	Roots []string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// Node returns the node for key, or nil.
func (g *Graph) Node(key string) *Node { return g.Nodes[key] }

// Len returns the number of resolved nodes.
func (g *Graph) Len() int { return len(g.Nodes) }

// add registers a node under its key and assigns its insertion sequence.
func (g *Graph) add(n *Node) {
	n.seq = len(g.Nodes)
	g.Nodes[n.Key.String()] = n
}

// LeavesFirst returns all nodes deepest-first: descending depth, with
// insertion order breaking ties. Roots come last. This is the merge
// precedence order for compilation.
func (g *Graph) LeavesFirst() []*Node {
	nodes := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth > nodes[j].Depth
		}
		return nodes[i].seq < nodes[j].seq
	})
	return nodes
}

// IsAncestor reports whether ancestor can reach descendant by walking
// child edges. Cycle edges are never recorded as children, so the walk
// terminates.
func (g *Graph) IsAncestor(ancestor, descendant string) bool {
	if ancestor == descendant {
		return false
	}
	seen := map[string]bool{}
	stack := []string{ancestor}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		n := g.Nodes[cur]
		if n == nil {
			continue
		}
		for _, child := range n.Children {
			if child == descendant {
				return true
			}
			stack = append(stack, child)
		}
	}
	return false
}

// Related reports whether either node is an ancestor of the other.
func (g *Graph) Related(a, b string) bool {
	return g.IsAncestor(a, b) || g.IsAncestor(b, a)
}
