package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/migrate"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var skipDuplicates bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the migration mapping without copying anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				tasks, err := migrate.NewPlanner(cfg, store).Plan(cmd.Context(), skipDuplicates)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "Nothing to migrate. Run `shellac analyze` after a scan.")
					return nil
				}

				rows := make([][]string, 0, len(tasks))
				copies, skips := 0, 0
				var copyBytes int64
				for _, task := range tasks {
					action := "copy"
					detail := task.TargetPath
					if task.Skip {
						action = "skip"
						detail = task.Reason
						skips++
					} else {
						copies++
						copyBytes += task.SizeBytes
					}
					rows = append(rows, []string{
						action,
						humanize.IBytes(uint64(task.SizeBytes)),
						task.SourcePath,
						detail,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]tableColumn{column("Action"), numericColumn("Size"), column("Source"), column("Target")},
					rows,
				))
				fmt.Fprintf(out, "%d copies (%s), %d skipped\n",
					copies, humanize.IBytes(uint64(copyBytes)), skips)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&skipDuplicates, "skip-duplicates", true, "Plan only the keeper from each duplicate group")
	return cmd
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var skipDuplicates bool
	var resume bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy analyzed files into the organized library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				executor := migrate.NewExecutor(cfg, store, nil, commandLogger(cfg))
				result, err := executor.Migrate(runCtx, skipDuplicates, resume)
				out := cmd.OutOrStdout()
				if errors.Is(err, context.Canceled) {
					fmt.Fprintln(out, "Migration interrupted; progress saved. Rerun with --resume to continue.")
					return err
				}
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Migration complete in %s\n", result.Elapsed.Round(timeRounding))
				fmt.Fprintf(out, "  migrated: %d  skipped: %d  failed: %d\n",
					result.Migrated, result.Skipped, result.Failed)
				if result.Failed > 0 {
					fmt.Fprintln(out, "Inspect failures with `shellac status`, then `shellac reset --failed` to retry.")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&skipDuplicates, "skip-duplicates", true, "Migrate only the keeper from each duplicate group")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue the previously planned migration")
	return cmd
}
