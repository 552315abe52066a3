package cli

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/apm-labs/apm/internal/config"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string

	flagVerbose bool
	flagQuiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "apm",
	Short: "Package manager for AI context packages",
	Long: `apm manages declarative context packages (instructions, prompts, skills,
chat modes) for AI coding agents: it resolves their dependency graphs,
locks resolutions for reproducibility, and compiles the content into the
artifacts agents consume.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Load()

		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: false,
		})
		switch {
		case flagVerbose:
			logger.SetLevel(log.DebugLevel)
		case flagQuiet:
			logger.SetLevel(log.ErrorLevel)
		}
		cmd.SetContext(log.WithContext(cmd.Context(), logger))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log errors")
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		return err
	}
	return nil
}
