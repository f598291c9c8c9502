package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/daimoniac/dtrack-upload/internal/config"
	"github.com/daimoniac/dtrack-upload/internal/statestore"
)

func newHistoryCmd() *cobra.Command {
	var (
		projectID string
		outcome   string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the local run history.",
		Long: `List runs recorded in the SQLite file named by RUN_HISTORY_PATH (or
history.path in dtrack.yml), newest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return fmt.Errorf("run history is disabled: set RUN_HISTORY_PATH")
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.History.Limit
			}

			store, err := statestore.NewSQLiteStore(cfg.History.Path)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), statestore.RunFilter{
				ProjectID: projectID,
				Outcome:   outcome,
				Limit:     limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if asJSON {
				return writeRunsJSON(cmd.OutOrStdout(), runs)
			}
			return writeRunsTable(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "only runs of this project UUID")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only runs with this outcome (succeeded, succeeded_with_issues, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeRunsTable(w io.Writer, runs []*statestore.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tCOMMAND\tPROJECT\tOUTCOME\tCRIT\tHIGH\tMED\tLOW\tPOLICY\tDURATION")
	for _, run := range runs {
		crit, high, med, low, policy := "-", "-", "-", "-", "-"
		if m := run.Metrics; m != nil {
			crit = fmt.Sprint(m.Critical)
			high = fmt.Sprint(m.High)
			med = fmt.Sprint(m.Medium)
			low = fmt.Sprint(m.Low)
			policy = fmt.Sprint(m.PolicyViolationsTotal)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			run.Command,
			projectLabel(run),
			run.Outcome,
			crit, high, med, low, policy,
			run.Duration().Round(time.Second))
	}
	return tw.Flush()
}

func projectLabel(run *statestore.RunRecord) string {
	switch {
	case run.ProjectName != "" && run.ProjectVersion != "":
		return run.ProjectName + "@" + run.ProjectVersion
	case run.ProjectName != "":
		return run.ProjectName
	default:
		return run.ProjectID
	}
}

func writeRunsJSON(w io.Writer, runs []*statestore.RunRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if runs == nil {
		runs = []*statestore.RunRecord{}
	}
	return enc.Encode(runs)
}
