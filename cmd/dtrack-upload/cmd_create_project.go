package main

import (
	"github.com/spf13/cobra"

	"github.com/daimoniac/dtrack-upload/internal/config"
)

func newCreateProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-project",
		Short: "Create a project, optionally below a parent.",
		Long: `Create a project with the given name, version and metadata. The parent
may be given by UUID or by name and version. Creating a project that already
exists fails.`,
		Args: cobra.NoArgs,
	}
	flags := newInputFlags(cmd.Flags(), connectionFlags, projectFlags, metadataFlags).withTags()

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := setup("create-project", flags, (*config.Config).ValidateCreate)
		if err != nil {
			return err
		}

		orchestrator, err := a.orchestrator(nil)
		if err != nil {
			return a.fail(err)
		}

		ctx, cancel := a.runContext(cmd.Context())
		defer cancel()

		result, runErr := orchestrator.RunCreate(ctx)
		return a.complete(cmd.Context(), result, runErr)
	}
	return cmd
}
