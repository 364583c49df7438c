package main

import (
	"fmt"
	"os"

	"github.com/ankit-pn/video-ocr-service/internal/cli"
)

// main() is the entry point to the program. Configuration is loaded
// from the environment (and optionally a YAML file) by the CLI before
// the requested command is run.
func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
