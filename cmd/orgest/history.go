package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eargollo/orgest/internal/job"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := ctx.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			records, total, err := job.List(cmd.Context(), database, limit, 0)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, historyRow(r))
			}
			var caption string
			if total > len(records) {
				caption = fmt.Sprintf("Showing %d of %d jobs.", len(records), total)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(historyColumns, rows, caption))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of jobs to show")
	return cmd
}

var historyColumns = []column{
	{title: "ID", width: 36},
	{title: "Started"},
	{title: "Trigger"},
	{title: "Status"},
	{title: "Duration", right: true},
	{title: "Root", width: 40},
	{title: "Stages", width: 40},
	{title: "Error", width: 40},
}

func historyRow(r job.Record) []string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	duration := "-"
	if r.DurationMS != nil {
		duration = (time.Duration(*r.DurationMS) * time.Millisecond).Round(time.Second).String()
	}
	return []string{
		id,
		r.StartedAt.Local().Format("2006-01-02 15:04"),
		r.TriggeredBy,
		string(r.Status),
		duration,
		r.Root,
		strings.Join(r.Stages, ","),
		r.Error,
	}
}
