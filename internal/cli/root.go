// Package cli provides the command-line interface for the video OCR service.
package cli

import (
	"fmt"

	"github.com/ankit-pn/video-ocr-service/internal"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	verbose    bool

	cfg *internal.ServiceConfig
)

// rootCmd runs the service when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "video-ocr",
	Short: "Extract on-screen text from videos into a key-value store",
	Long: `Watches a directory of videos, samples one frame every few seconds of
each new video, runs OCR over the sampled frames and stores the text
against the video's name in the store API.

Configuration is read from the environment, or from a YAML file given
with --config (or VIDEO_OCR_CONFIG). Environment variables take
precedence over the file.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		path := configPath
		if path == "" {
			fromEnv, err := internal.ConfigPathFromEnv()
			if err != nil {
				return err
			}
			path = fromEnv
		}

		loaded, err := internal.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		level := logger.ParseLevel(cfg.LogLevel)
		if verbose {
			level = logger.VERBOSE
		}
		logger.SetMinLoggingLevel(level.Level())

		return nil
	},
	RunE: runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "emit verbose logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(scanCmd)
}
