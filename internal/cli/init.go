package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/apm-labs/apm/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an apm.yml in the current directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, projectManifestFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", projectManifestFile)
	}

	name, err := manifest.Normalize(filepath.Base(dir))
	if err != nil {
		name = "my-project"
	}

	content := fmt.Sprintf(`name: %s
version: 1.0.0
description: ""
dependencies:
  apm: []
  mcp: []
`, name)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", projectManifestFile, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", projectManifestFile)
	return nil
}
