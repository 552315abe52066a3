package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/apm-labs/apm/internal/compiler"
	"github.com/apm-labs/apm/internal/resolver"
)

// artifactFiles maps compilation targets to their output files in the
// project directory.
var artifactFiles = map[string]string{
	compiler.TargetAgents.ID: "AGENTS.md",
	compiler.TargetSkills.ID: "SKILLS.md",
}

// writeArtifacts renders each non-empty artifact to its project file and
// removes the file when the artifact compiled empty. Returns the written
// paths in stable order.
func writeArtifacts(dir string, artifacts map[string]*compiler.Artifact) ([]string, error) {
	ids := make([]string, 0, len(artifacts))
	for id := range artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var written []string
	for _, id := range ids {
		name, ok := artifactFiles[id]
		if !ok {
			name = id + ".md"
		}
		path := filepath.Join(dir, name)
		art := artifacts[id]
		if len(art.Sections) == 0 {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return written, err
			}
			continue
		}
		if err := os.WriteFile(path, []byte(art.Render()), 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

func printDiagnostics(cmd *cobra.Command, diags []resolver.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", d)
	}
}

func printMergeWarnings(cmd *cobra.Command, warnings []compiler.MergeWarning) {
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
}
