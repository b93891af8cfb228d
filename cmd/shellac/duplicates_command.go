package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shellac/internal/catalog"
	"shellac/internal/config"
)

func newDuplicatesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var offset int
	var members bool

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List duplicate groups, largest reclaimable first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				groups, err := store.ListGroups(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(groups) == 0 {
					fmt.Fprintln(out, "No duplicate groups recorded. Run `shellac analyze` after a scan.")
					return nil
				}

				if members {
					printMemberRows(out, groups)
				} else {
					printGroupRows(out, groups)
				}

				var reclaimable int64
				for i := range groups {
					reclaimable += groups[i].ReclaimableBytes()
				}
				fmt.Fprintf(out, "%d groups, %s reclaimable\n",
					len(groups), humanize.IBytes(uint64(reclaimable)))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of groups to show (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of groups to skip")
	cmd.Flags().BoolVar(&members, "members", false, "Show every file in each group")
	return cmd
}

func printGroupRows(out io.Writer, groups []catalog.DuplicateGroup) {
	rows := make([][]string, 0, len(groups))
	for i := range groups {
		group := &groups[i]
		primaryPath := ""
		if primary, ok := group.Primary(); ok {
			primaryPath = primary.SourcePath
		}
		rows = append(rows, []string{
			shortHash(group.FullHash),
			fmt.Sprintf("%d", len(group.Members)),
			humanize.IBytes(uint64(group.ReclaimableBytes())),
			primaryPath,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]tableColumn{column("Hash"), numericColumn("Files"), numericColumn("Reclaimable"), column("Keeper")},
		rows,
	))
}

func printMemberRows(out io.Writer, groups []catalog.DuplicateGroup) {
	var rows [][]string
	for i := range groups {
		group := &groups[i]
		for _, member := range group.Members {
			role := "duplicate"
			if member.IsPrimary {
				role = "keeper"
			}
			rows = append(rows, []string{
				shortHash(group.FullHash),
				role,
				fmt.Sprintf("%d", member.QualityScore),
				humanize.IBytes(uint64(member.SizeBytes)),
				member.SourcePath,
			})
		}
	}
	fmt.Fprintln(out, renderTable(
		[]tableColumn{column("Hash"), column("Role"), numericColumn("Score"), numericColumn("Size"), column("Path")},
		rows,
	))
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
