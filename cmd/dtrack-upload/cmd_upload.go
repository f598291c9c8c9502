package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daimoniac/dtrack-upload/internal/config"
)

var uploadFlags = []flagSpec{
	{name: "bom", input: config.InputBomFilePath, usage: "path of the BOM file to upload"},
	{name: "auto-create", input: config.InputProjectAutoCreate, usage: "create the project when it does not exist", boolean: true},
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a BOM, update project metadata and evaluate thresholds.",
		Long: `Upload a BOM to an existing project, or to a project created on the fly
with --auto-create (optionally below a parent). Requested metadata is applied
afterwards. When a threshold action is set, the command waits for the analysis
and evaluates the fresh metrics.

Examples:
  # Upload to a project by name and version, creating it if needed
  dtrack-upload upload --bom bom.json --project-name app --project-version 1.2.0 --auto-create

  # Fail the build on any critical vulnerability
  dtrack-upload upload --bom bom.json --project-id 6f1b3c2e-... --threshold-action error --threshold-critical 0`,
		Args: cobra.NoArgs,
	}
	flags := newInputFlags(cmd.Flags(), connectionFlags, uploadFlags, projectFlags, metadataFlags, thresholdFlags).withTags()

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := setup("upload", flags, (*config.Config).ValidateUpload)
		if err != nil {
			return err
		}

		a.logger.Info("reading BOM", "path", a.cfg.BomFilePath)
		bom, err := os.ReadFile(a.cfg.BomFilePath)
		if err != nil {
			return a.fail(fmt.Errorf("failed to read BOM %s: %w", a.cfg.BomFilePath, err))
		}

		orchestrator, err := a.orchestrator(bom)
		if err != nil {
			return a.fail(err)
		}

		ctx, cancel := a.runContext(cmd.Context())
		defer cancel()

		result, runErr := orchestrator.Run(ctx)
		return a.complete(cmd.Context(), result, runErr)
	}
	return cmd
}
