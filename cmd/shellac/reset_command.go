package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shellac/internal/catalog"
	"shellac/internal/config"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "reset [path]",
		Short: "Return files to the discovered state for reprocessing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if failed == (len(args) == 1) {
				return fmt.Errorf("provide either a file path or --failed")
			}
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					if err := store.ResetFile(cmd.Context(), args[0]); err != nil {
						return err
					}
					fmt.Fprintf(out, "Reset %s\n", args[0])
					return nil
				}

				records, err := store.ListFiles(cmd.Context(), catalog.StatusFailed)
				if err != nil {
					return err
				}
				for _, record := range records {
					if err := store.ResetFile(cmd.Context(), record.SourcePath); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "Reset %d failed files\n", len(records))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Reset every failed file")
	return cmd
}
