package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configDir string

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_DIR")
	if envConfig == "" {
		envConfig = "."
	}

	cmd := &cobra.Command{
		Use:          "portal",
		Short:        "Study portal API: chapter notes, generated summaries and quizzes",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configDir, "config", envConfig, "directory containing config.yaml")
	cmd.AddCommand(newServeCmd(&configDir))
	cmd.AddCommand(newIndexesCmd(&configDir))
	cmd.AddCommand(newTokenCmd(&configDir))
	cmd.AddCommand(newHashAdminKeyCmd())
	return cmd
}
