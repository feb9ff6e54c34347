// Package cli is the command-line channel: it replaces the desktop form for
// issuing documents and exposes the ledger and the number series.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the invoicedesk command tree. load starts the core
// for one-shot commands.
func NewRootCommand(load Loader) *cobra.Command {
	if load == nil {
		load = LoadRuntime
	}

	root := &cobra.Command{
		Use:   "invoicedesk",
		Short: "Issue numbered dealership invoices, proformas and advance receipts",
		Long: `invoicedesk allocates gap-tolerant, duplicate-free invoice numbers per
bucket and year, renders the document as PDF and records every issued
document in a CSV ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newIssueCommand(load),
		newExportCommand(load),
		newSequenceCommand(load),
		newLedgerCommand(load),
	)
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := NewServeApp()
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

// withRuntime starts the core, runs fn and always shuts the core down.
func withRuntime(ctx context.Context, load Loader, fn func(rt *Runtime) error) error {
	rt, stop, err := load(ctx)
	if err != nil {
		return fmt.Errorf("start invoicedesk: %w", err)
	}
	defer stop()
	return fn(rt)
}
