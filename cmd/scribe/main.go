package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"scribe/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "0.3.0"

var (
	// Global flags
	verbose   bool
	workspace string
	apiKey    string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "scribe - supervisor/worker research report generator",
	Long: `scribe turns a topic and a local notes corpus into a structured
research report.

A supervisor plans the report outline with an LLM, dispatches each
section to an isolated drafting worker through a prioritized queue,
and assembles the drafts into a Markdown report. Notes ingested into
the corpus are recalled per section via embedding similarity.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the scribe version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scribe %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: cwd)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "LLM API key (overrides config and env)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
