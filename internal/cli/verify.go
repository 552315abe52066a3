package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apm-labs/apm/internal/lockfile"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the lockfile still matches a fresh resolution",
	Long: `Verify re-resolves the dependency graph from scratch and compares it
against apm.lock. Any drifted, missing, or extra entries fail the check.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	lock, err := lockfile.Load(p.lockPath())
	if err != nil {
		return err
	}
	if lock == nil {
		return fmt.Errorf("no %s; run 'apm install' first", lockfile.DefaultName)
	}

	// Resolve without the lockfile so every commit is recomputed.
	res, err := newResolver(nil).Resolve(cmd.Context(), p.roots())
	if err != nil {
		return err
	}
	printDiagnostics(cmd, res.Diagnostics)

	out := cmd.OutOrStdout()
	drift := 0

	for _, rec := range lock.Sorted() {
		fresh, ok := res.Lock.Lookup(rec.Key)
		switch {
		case !ok:
			drift++
			fmt.Fprintf(out, "  missing   %s (locked at %s)\n", rec.Key, rec.ResolvedCommit)
		case fresh.ResolvedCommit != rec.ResolvedCommit:
			drift++
			fmt.Fprintf(out, "  drifted   %s: %s -> %s\n", rec.Key, rec.ResolvedCommit, fresh.ResolvedCommit)
		}
	}
	for _, rec := range res.Lock.Sorted() {
		if _, ok := lock.Lookup(rec.Key); !ok {
			drift++
			fmt.Fprintf(out, "  unlocked  %s (resolves to %s)\n", rec.Key, rec.ResolvedCommit)
		}
	}

	if drift > 0 {
		return fmt.Errorf("%d entries out of date; run 'apm install --update'", drift)
	}
	fmt.Fprintf(out, "Lockfile is up to date (%d packages).\n", lock.Len())
	return nil
}
