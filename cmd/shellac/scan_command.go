package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "Index audio files under a source root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				result, err := scanner.New(cfg, store, nil, commandLogger(cfg)).Scan(runCtx, args[0], resume)
				out := cmd.OutOrStdout()
				if errors.Is(err, context.Canceled) {
					fmt.Fprintln(out, "Scan interrupted; progress saved. Rerun with --resume to continue.")
					return err
				}
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Scan complete in %s\n", result.Elapsed.Round(timeRounding))
				fmt.Fprintf(out, "  indexed: %d  unchanged: %d  failed: %d\n",
					result.Added, result.Skipped, result.Failed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "Continue from the last scan checkpoint")
	return cmd
}
