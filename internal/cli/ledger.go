package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/invoice/format"
	"github.com/smallbiznis/invoicedesk/internal/ledger"
	"github.com/spf13/cobra"
)

func newExportCommand(load Loader) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the ledger as CSV",
		Long:  `Write the ledger to FILE, to OUTPUT_DIR/invoices_YYYYMMDD.csv by default, or to stdout with --out -.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), load, func(rt *Runtime) error {
				data, err := rt.Ledger.Export(cmd.Context())
				if err != nil {
					return err
				}
				if out == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}

				path := out
				if path == "" {
					path = filepath.Join(rt.Config.OutputDir, ledger.ExportFilename(rt.Clock.Now()))
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ledger exported to %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file, - for stdout")
	return cmd
}

func newLedgerCommand(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the ledger",
	}

	var bucket string
	list := &cobra.Command{
		Use:   "list",
		Short: "List issued documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.Bucket
			if strings.TrimSpace(bucket) != "" {
				parsed, err := domain.ParseBucket(bucket)
				if err != nil {
					return err
				}
				filter = parsed
			}

			return withRuntime(cmd.Context(), load, func(rt *Runtime) error {
				entries, err := rt.Ledger.Rows(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TYPE\tNO\tDATE\tCUSTOMER\tMODEL\tPRICE\tBALANCE")
				for _, e := range entries {
					if filter != "" && e.Get("invoice_type") != string(filter) {
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						e.Get("invoice_type"), e.Get("invoice_no"), e.Get("date"),
						e.Get("customer"), e.Get("model"), e.Get("price"), e.Get("balance"))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().StringVarP(&bucket, "bucket", "b", "", "SALES, PROFORMA or ADVANCE")

	cmd.AddCommand(list)
	return cmd
}

func newSequenceCommand(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Inspect invoice number series",
	}

	var (
		bucket string
		year   int
	)
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the last number consumed for a bucket and year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseBucket(bucket)
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), load, func(rt *Runtime) error {
				y := year
				if y == 0 {
					y = rt.Clock.Now().Year()
				}
				last, err := rt.Allocator.Peek(cmd.Context(), parsed, y)
				if err != nil {
					return err
				}
				next, err := format.SequenceNumber(last + 1)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s last=%d next=%s\n", parsed, strconv.Itoa(y), last, next)
				return nil
			})
		},
	}
	show.Flags().StringVarP(&bucket, "bucket", "b", "", "SALES, PROFORMA or ADVANCE")
	show.Flags().IntVarP(&year, "year", "y", 0, "year, defaults to the current year")
	_ = show.MarkFlagRequired("bucket")

	cmd.AddCommand(show)
	return cmd
}
