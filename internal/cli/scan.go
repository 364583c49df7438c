package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/ankit-pn/video-ocr-service/internal/ingest"
	"github.com/ankit-pn/video-ocr-service/internal/task"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "List the videos that would be processed, and their keys",
	Long: `Walks the videos directory (or the directory given) and prints every
eligible video along with the key its result is stored under. Nothing is
processed and the store is not contacted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	root := cfg.Ingest.Path
	if len(args) == 1 {
		root = args[0]
	}

	filter := ingest.NewFilter(cfg.Ingest.Extensions)
	keyer := task.NewKeyer(root, cfg.Ingest.KeyStrategy)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tPATH")

	count := 0
	err := ingest.Walk(root, filter, func(path string) error {
		count++
		fmt.Fprintf(w, "%s\t%s\n", keyer.Key(path), path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d eligible videos\n", count)

	return nil
}
