package main

import (
	"github.com/spf13/cobra"

	"github.com/daimoniac/dtrack-upload/internal/config"
)

func newUpdateProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-project",
		Short: "Apply metadata to an existing project without uploading.",
		Long: `Apply description, classifier, SWID tag id, group, tags and the latest
flag to an existing project. Only fields that differ from the server are sent;
nothing is sent when they all match.`,
		Args: cobra.NoArgs,
	}
	flags := newInputFlags(cmd.Flags(), connectionFlags, projectFlags, metadataFlags).withTags()

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := setup("update-project", flags, (*config.Config).Validate)
		if err != nil {
			return err
		}

		orchestrator, err := a.orchestrator(nil)
		if err != nil {
			return a.fail(err)
		}

		ctx, cancel := a.runContext(cmd.Context())
		defer cancel()

		result, runErr := orchestrator.RunUpdate(ctx)
		return a.complete(cmd.Context(), result, runErr)
	}
	return cmd
}
