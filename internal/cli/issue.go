package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/issuance"
	obsctx "github.com/smallbiznis/invoicedesk/internal/observability/context"
	"github.com/spf13/cobra"
)

type issueFlags struct {
	kind           string
	customer       string
	nic            string
	address        string
	delivery       string
	model          string
	engine         string
	chassis        string
	color          string
	price          string
	down           string
	financeCompany string
	financeAddress string
	dealer         string
	paymentMethod  string
	out            string
}

func newIssueCommand(load Loader) *cobra.Command {
	var f issueFlags

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue one document and save the PDF",
		Long: `Issue a sales invoice (cash or leasing), a proforma invoice or an advance
payment receipt. The PDF is saved under OUT/{BUCKET}-{year}/.`,
		Example: `  invoicedesk issue --kind sales-leasing --customer "Nimal Perera" \
    --nic 851234567V --model "APE AUTO DX" --price 850000 --down 250000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}

			ctx := obsctx.WithChannel(cmd.Context(), "cli")
			return withRuntime(ctx, load, func(rt *Runtime) error {
				res, err := rt.Issuance.Issue(ctx, req)
				if err != nil {
					if res.Record.InvoiceNo != "" {
						return fmt.Errorf("issue %s %s: %w", req.Kind, res.Record.InvoiceNo, err)
					}
					return fmt.Errorf("issue %s: %w", req.Kind, err)
				}

				outDir := f.out
				if outDir == "" {
					outDir = rt.Config.OutputDir
				}
				path, err := saveDocument(outDir, res)
				if err != nil {
					return fmt.Errorf("%s %s issued but not saved: %w", res.Record.Kind, res.Record.InvoiceNo, err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s saved to %s\n", res.Record.Kind, res.Record.InvoiceNo, path)
				for _, warning := range res.Warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.kind, "kind", "k", "", "sales-cash, sales-leasing, proforma or advance")
	flags.StringVarP(&f.customer, "customer", "c", "", "customer name")
	flags.StringVar(&f.nic, "nic", "", "customer NIC number")
	flags.StringVar(&f.address, "address", "", "customer address")
	flags.StringVar(&f.delivery, "delivery", "", "delivery address (leasing and proforma)")
	flags.StringVarP(&f.model, "model", "m", "", "vehicle model")
	flags.StringVar(&f.engine, "engine", "", "engine number")
	flags.StringVar(&f.chassis, "chassis", "", "chassis number")
	flags.StringVar(&f.color, "color", "", "vehicle colour")
	flags.StringVarP(&f.price, "price", "p", "", "vehicle price")
	flags.StringVarP(&f.down, "down", "d", "0", "down payment or advance received")
	flags.StringVar(&f.financeCompany, "finance-company", "", "finance company (proforma)")
	flags.StringVar(&f.financeAddress, "finance-address", "", "finance company address (proforma)")
	flags.StringVar(&f.dealer, "dealer", "", "dealer name, defaults to the dealer profile")
	flags.StringVar(&f.paymentMethod, "payment-method", "", "payment method (advance)")
	flags.StringVarP(&f.out, "out", "o", "", "output directory, defaults to OUTPUT_DIR")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func (f issueFlags) request() (issuance.Request, error) {
	kind, err := domain.ParseKind(f.kind)
	if err != nil {
		return issuance.Request{}, err
	}
	price, err := parseAmount("price", f.price)
	if err != nil {
		return issuance.Request{}, err
	}
	down, err := parseAmount("down_payment", f.down)
	if err != nil {
		return issuance.Request{}, err
	}

	return issuance.Request{
		Kind:            kind,
		CustomerName:    f.customer,
		CustomerNIC:     f.nic,
		CustomerAddress: f.address,
		DeliveryAddress: f.delivery,
		VehicleModel:    f.model,
		EngineNo:        f.engine,
		ChassisNo:       f.chassis,
		Color:           f.color,
		Price:           price,
		DownPayment:     down,
		FinanceCompany:  f.financeCompany,
		FinanceAddress:  f.financeAddress,
		DealerName:      f.dealer,
		PaymentMethod:   f.paymentMethod,
	}, nil
}

// parseAmount accepts plain and comma-grouped amounts, e.g. "150,000.00".
func parseAmount(field, raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, domain.NewValidationError(field, "invalid_amount", fmt.Sprintf("%q is not an amount", raw))
	}
	return v, nil
}

// saveDocument writes the PDF to dir/{BUCKET}-{year}/{filename}.
func saveDocument(dir string, res issuance.Result) (string, error) {
	key := res.Record.Key()
	folder := filepath.Join(dir, string(key.Bucket)+"-"+strconv.Itoa(key.Year))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(folder, res.Filename)
	if err := os.WriteFile(path, res.Document.Bytes, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
