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
	"shellac/internal/dedupe"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Group content-identical files and elect keepers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				result, err := dedupe.New(cfg, store, nil, commandLogger(cfg)).Resolve(runCtx)
				out := cmd.OutOrStdout()
				if errors.Is(err, context.Canceled) {
					fmt.Fprintln(out, "Analysis interrupted; progress saved. Rerun to continue.")
					return err
				}
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Analyzed %d files\n", result.Examined)
				fmt.Fprintf(out, "  duplicate groups: %d  duplicate files: %d  failed: %d\n",
					result.Groups, result.DuplicateFiles, result.Failed)
				if result.ReclaimableBytes > 0 {
					fmt.Fprintf(out, "  reclaimable: %s\n", humanize.IBytes(uint64(result.ReclaimableBytes)))
				}
				return nil
			})
		},
	}
	return cmd
}
