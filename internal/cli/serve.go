package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ankit-pn/video-ocr-service/internal"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Process existing videos and watch for new ones (default)",
	Long: `Scans the videos directory, queues every video which has no stored
result, and then watches the directory for new files until interrupted.

An interrupt lets in-flight videos finish; queued videos are left for the
next start, which skips anything already stored.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := internal.New(*cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
