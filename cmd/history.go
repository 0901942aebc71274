package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/internal/persistence"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		status string
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *persistence.SQLiteStore) error {
				q := persistence.HistoryQuery{Limit: limit, Status: jobs.Status(strings.ToLower(status))}
				if since > 0 {
					q.Since = time.Now().Add(-since)
				}
				records, err := store.ListHistory(cmd.Context(), q)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				fmt.Fprintln(out, renderHistory(records))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs")
	cmd.Flags().StringVar(&status, "status", "", "Only jobs with this status (done, cancelled, failed)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only jobs created within this window")

	cmd.AddCommand(newHistoryShowCommand(ctx), newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *persistence.SQLiteStore) error {
				rec, ok, err := store.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("job %s not found", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRecord(rec))
				return nil
			})
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete jobs older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withHistory(ctx, func(store *persistence.SQLiteStore) error {
				n, err := store.DeleteBefore(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	return cmd
}

func withHistory(ctx *commandContext, fn func(*persistence.SQLiteStore) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	ctx.quietLogging(cfg)
	return openHistory(cfg, fn)
}

func openHistory(cfg *config.Config, fn func(*persistence.SQLiteStore) error) error {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func renderHistory(records []jobs.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		result := rec.OutputFolder
		if rec.Error != "" {
			result = rec.Error
		}
		rows = append(rows, []string{
			shortID(rec.ID),
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			string(rec.Status),
			rec.TargetLanguage,
			rec.Service,
			truncate(rec.Source(), 48),
			result,
		})
	}
	return renderTable(
		[]string{"ID", "Created", "Status", "Lang", "Service", "Source", "Result"},
		rows,
		nil,
	)
}

func renderRecord(rec jobs.Record) string {
	finished := "-"
	if rec.FinishedAt != nil {
		finished = rec.FinishedAt.Local().Format(time.DateTime)
	}
	rows := [][]string{
		{"ID", rec.ID},
		{"Status", rec.Status.Label()},
		{"Source", rec.Source()},
		{"Target language", rec.TargetLanguage},
		{"Service", rec.Service},
		{"GPU requested", fmt.Sprintf("%t", rec.UseGPU)},
		{"Created", rec.CreatedAt.Local().Format(time.DateTime)},
		{"Finished", finished},
		{"Output", rec.OutputFolder},
		{"Error", rec.Error},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
