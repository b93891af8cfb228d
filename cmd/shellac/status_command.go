package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/events"
	"shellac/internal/logging"
	"shellac/internal/pipeline"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog health and operation checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				p := pipeline.New(cfg, store, events.NewBus(0), logging.NewNop())
				status, err := p.Status(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Catalog", colorize) {
					fmt.Fprintln(out, line)
				}
				printHealth(out, status.Health, colorize)

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Operations", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, operation := range []string{catalog.OperationScan, catalog.OperationAnalyze, catalog.OperationMigrate} {
					printOperation(out, status.Operations[operation], colorize)
				}
				return nil
			})
		},
	}
	return cmd
}

func printHealth(out io.Writer, health catalog.HealthSummary, colorize bool) {
	fmt.Fprintln(out, renderStatusLine("indexed files", statusInfo,
		fmt.Sprintf("%d (%s)", health.Total, humanize.IBytes(uint64(health.TotalBytes))), colorize))
	fmt.Fprintln(out, renderStatusLine("discovered", statusInfo, fmt.Sprintf("%d", health.Discovered), colorize))
	fmt.Fprintln(out, renderStatusLine("fingerprinted", statusInfo, fmt.Sprintf("%d", health.Fingerprinted), colorize))
	fmt.Fprintln(out, renderStatusLine("analyzed", statusInfo, fmt.Sprintf("%d", health.Analyzed), colorize))
	fmt.Fprintln(out, renderStatusLine("migrated", statusOK, fmt.Sprintf("%d", health.Migrated), colorize))

	failedKind := statusOK
	if health.Failed > 0 {
		failedKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("failed", failedKind, fmt.Sprintf("%d", health.Failed), colorize))

	quarantinedKind := statusOK
	if health.Quarantined > 0 {
		quarantinedKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("quarantined", quarantinedKind, fmt.Sprintf("%d", health.Quarantined), colorize))
}

func printOperation(out io.Writer, status pipeline.OperationStatus, colorize bool) {
	kind := statusOK
	message := "idle"
	switch {
	case status.Running:
		kind = statusInfo
		message = fmt.Sprintf("running, %d processed", status.Processed)
	case status.Resumable:
		kind = statusWarn
		message = fmt.Sprintf("resumable, %d processed", status.Processed)
		if status.Total > 0 {
			message = fmt.Sprintf("resumable, %d of %d processed", status.Processed, status.Total)
		}
	case status.LastError != "":
		kind = statusError
		message = status.LastError
	}
	fmt.Fprintln(out, renderStatusLine(status.Operation, kind, message, colorize))
}
