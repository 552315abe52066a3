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

var installUpdate bool

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Resolve dependencies, write the lockfile, and compile artifacts",
	Long: `Install resolves the project's dependency graph, writes apm.lock, and
compiles the merged instruction and skill artifacts. With an up-to-date
lockfile present, resolution reuses the locked commits without fetching.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installUpdate, "update", false, "Ignore the lockfile and re-resolve everything")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	logger := log.FromContext(cmd.Context())

	p, err := loadProject()
	if err != nil {
		return err
	}

	var lock *lockfile.File
	if !installUpdate {
		lock, err = lockfile.Load(p.lockPath())
		if err != nil {
			return err
		}
	}

	rv := newResolver(lock)
	res, err := rv.Resolve(cmd.Context(), p.roots())
	if err != nil {
		return err
	}
	printDiagnostics(cmd, res.Diagnostics)

	if err := res.Lock.Write(p.lockPath()); err != nil {
		return fmt.Errorf("writing lockfile: %w", err)
	}
	logger.Debug("lockfile written", "path", p.lockPath(), "records", res.Lock.Len())

	provider := source.NewProvider(config.StoreDir())
	artifacts, warnings, err := compiler.CompileWithLog(res.Graph, provider, compiler.DefaultTargets, logger)
	if err != nil {
		return err
	}
	printMergeWarnings(cmd, warnings)

	written, err := writeArtifacts(p.Dir, artifacts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Resolved %d packages (%d direct).\n", res.Graph.Len(), len(p.roots()))
	for _, path := range written {
		fmt.Fprintf(cmd.OutOrStdout(), "  wrote %s\n", path)
	}
	return nil
}
