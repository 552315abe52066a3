package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apm-labs/apm/internal/lockfile"
	"github.com/apm-labs/apm/internal/resolver"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the resolved dependency graph",
	Args:  cobra.NoArgs,
	RunE:  runTree,
}

func init() {
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	lock, err := lockfile.Load(p.lockPath())
	if err != nil {
		return err
	}

	res, err := newResolver(lock).Resolve(cmd.Context(), p.roots())
	if err != nil {
		return err
	}
	printDiagnostics(cmd, res.Diagnostics)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", p.Manifest.Name, p.Manifest.Version)
	seen := map[string]bool{}
	for _, root := range res.Graph.Roots {
		printNode(out, res.Graph, root, 1, seen)
	}
	return nil
}

// printNode renders one node and recurses into its children. A key printed
// before is marked shared and not expanded again.
func printNode(out io.Writer, g *resolver.Graph, key string, depth int, seen map[string]bool) {
	indent := strings.Repeat("  ", depth)
	n := g.Node(key)
	if n == nil {
		fmt.Fprintf(out, "%s%s (unresolved)\n", indent, key)
		return
	}

	var marks []string
	if n.FromLock {
		marks = append(marks, "locked")
	}
	if seen[key] {
		marks = append(marks, "shared")
	}
	suffix := ""
	if len(marks) > 0 {
		suffix = " (" + strings.Join(marks, ", ") + ")"
	}
	fmt.Fprintf(out, "%s%s %s [%s]%s\n", indent, n.Manifest.Name, n.Manifest.Version, n.Manifest.Kind, suffix)

	if seen[key] {
		return
	}
	seen[key] = true
	for _, child := range n.Children {
		printNode(out, g, child, depth+1, seen)
	}
}
