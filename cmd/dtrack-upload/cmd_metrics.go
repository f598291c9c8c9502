package main

import (
	"github.com/spf13/cobra"

	"github.com/daimoniac/dtrack-upload/internal/config"
)

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Evaluate the current metrics of a project against the thresholds.",
		Long: `Read the current vulnerability and policy violation counts of an existing
project and evaluate them against the configured thresholds, without uploading
or waiting for an analysis.`,
		Args: cobra.NoArgs,
	}
	flags := newInputFlags(cmd.Flags(), connectionFlags, projectFlags, thresholdFlags)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := setup("metrics", flags, (*config.Config).Validate)
		if err != nil {
			return err
		}

		orchestrator, err := a.orchestrator(nil)
		if err != nil {
			return a.fail(err)
		}

		ctx, cancel := a.runContext(cmd.Context())
		defer cancel()

		result, runErr := orchestrator.RunMetrics(ctx)
		return a.complete(cmd.Context(), result, runErr)
	}
	return cmd
}
