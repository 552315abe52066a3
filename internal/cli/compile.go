package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/apm-labs/apm/internal/compiler"
	"github.com/apm-labs/apm/internal/config"
	"github.com/apm-labs/apm/internal/lockfile"
	"github.com/apm-labs/apm/internal/source"
)

var compileTarget string

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Recompile artifacts from the resolved graph",
	Long: `Compile rebuilds the merged artifacts without touching the lockfile.
Resolution reuses apm.lock when it is present and current.`,
	Args: cobra.NoArgs,
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVar(&compileTarget, "target", "", "Compile a single target (agents or skills)")
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	logger := log.FromContext(cmd.Context())

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

	targets := compiler.DefaultTargets
	if compileTarget != "" {
		targets = nil
		for _, t := range compiler.DefaultTargets {
			if t.ID == compileTarget {
				targets = []compiler.Target{t}
			}
		}
		if targets == nil {
			return fmt.Errorf("unknown target %q", compileTarget)
		}
	}

	provider := source.NewProvider(config.StoreDir())
	artifacts, warnings, err := compiler.CompileWithLog(res.Graph, provider, targets, logger)
	if err != nil {
		return err
	}
	printMergeWarnings(cmd, warnings)

	written, err := writeArtifacts(p.Dir, artifacts)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Fprintf(cmd.OutOrStdout(), "  wrote %s\n", path)
	}
	return nil
}
