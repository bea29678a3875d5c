// Package cmd implements the pipeline-engine CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ciq/pipeline-engine/pkg/logger"
)

const (
	// Version is the current release version.
	Version = "0.1.0"
	// Banner is printed on startup.
	Banner = `
   ___ ___ ___   Pipeline Engine %s
  / __|_ _/ _ \
 | (__ | | (_) |
  \___|___\__\_\
`
)

var (
	cfgFile string
	debug   bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "pipeline-engine",
	Short: "CI pipeline engine",
	Long: `pipeline-engine runs CI pipelines defined in YAML: push, pull
request, cron and manual triggers, matrix fan-out, concurrency groups
and secret-aware step execution.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if debug {
			level = "debug"
		}
		if quiet {
			level = "error"
		}
		logger.Init(&logger.Config{Level: level, Format: "console", Output: "stdout"})
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "engine config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd returns the root command, used by tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}
