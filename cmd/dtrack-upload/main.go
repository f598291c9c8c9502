package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

// errReported marks a failure that was already reported to the task host
var errReported = errors.New("run failed")

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	upload := newUploadCmd()

	root := &cobra.Command{
		Use:   "dtrack-upload",
		Short: "Upload a BOM to Dependency-Track and gate the build on the findings.",
		Long: `Upload a CycloneDX BOM to Dependency-Track, wait for the analysis and
fail or warn when vulnerability or policy violation counts exceed thresholds.

Every flag has a task input equivalent read from INPUT_<NAME>, and defaults
may be kept in dtrack.yml (path in DTRACK_CONFIG). Flags win over inputs,
inputs win over the file.

Without a subcommand, upload is run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          upload.RunE,
	}
	root.Flags().AddFlagSet(upload.Flags())

	root.AddCommand(
		upload,
		newUpdateProjectCmd(),
		newCreateProjectCmd(),
		newMetricsCmd(),
		newHistoryCmd(),
	)
	return root
}
