package cli

import (
	"fmt"

	"github.com/ankit-pn/video-ocr-service/internal/store"
	"github.com/ankit-pn/video-ocr-service/internal/task"
	"github.com/spf13/cobra"
)

var lookupRaw bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <video|key>",
	Short: "Print the stored OCR text for a video",
	Long: `Fetches the OCR text stored for a video. The argument may be a key or a
path to a video, in which case the file's base name is used as the key.

Examples:
  video-ocr lookup lecture01
  video-ocr lookup /app/videos/lecture01.mp4
  video-ocr lookup --raw 6f1c0b0e-5d0c-5b8e-9d8f-1f0a2b3c4d5e`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().BoolVar(&lookupRaw, "raw", false, "use the argument as the key without stripping the extension")
}

func runLookup(cmd *cobra.Command, args []string) error {
	if cfg.Store.Domain == "" {
		return fmt.Errorf("store API domain (REDIS_API_DOMAIN) is not configured")
	}

	key := args[0]
	if !lookupRaw {
		key = task.BaseIdentifier(key)
	}

	value, found, err := store.New(cfg.Store).Get(cmd.Context(), key)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", key, err)
	}
	if !found {
		return fmt.Errorf("no result stored for %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
