package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/facucarcelero/comandero/internal/service"
)

type reportOptions struct {
	*RootOptions
	From  string
	To    string
	Limit int
}

func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &reportOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print sales reports",
		Long: `Print sales reports over an inclusive range of UTC days. Without --from and
--to the last seven days up to today are used.`,
	}
	cmd.PersistentFlags().StringVar(&opts.From, "from", "", "first day, YYYY-MM-DD")
	cmd.PersistentFlags().StringVar(&opts.To, "to", "", "last day, YYYY-MM-DD")

	cmd.AddCommand(&cobra.Command{
		Use:     "sales",
		Short:   "Sales per day",
		Example: `  posctl report sales --from 2024-01-01 --to 2024-01-31 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSalesReport(cmd, opts)
		},
	})

	top := &cobra.Command{
		Use:   "top",
		Short: "Best selling products by quantity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopReport(cmd, opts)
		},
	}
	top.Flags().IntVar(&opts.Limit, "limit", 10, "number of products to show")
	cmd.AddCommand(top)

	return cmd
}

func runSalesReport(cmd *cobra.Command, opts *reportOptions) error {
	from, to, err := service.DayRange(opts.From, opts.To, time.Now().UTC())
	if err != nil {
		return err
	}
	ctx := operatorContext(cmd.Context())
	rt, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	rows, err := rt.svc.Reports.SalesByDate(ctx, from, to)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), rows)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "date\torders\tsubtotal\ttax\ttotal\t")
	var orders int
	var total int64
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t\n", row.Date, row.OrderCount,
			rt.money.Format(row.SubtotalCents), rt.money.Format(row.TaxCents), rt.money.Format(row.TotalCents))
		orders += row.OrderCount
		total += row.TotalCents
	}
	fmt.Fprintf(tw, "total\t%d\t\t\t%s\t\n", orders, rt.money.Format(total))
	return tw.Flush()
}

func runTopReport(cmd *cobra.Command, opts *reportOptions) error {
	if opts.Limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}
	from, to, err := service.DayRange(opts.From, opts.To, time.Now().UTC())
	if err != nil {
		return err
	}
	ctx := operatorContext(cmd.Context())
	rt, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	rows, err := rt.svc.Reports.TopProducts(ctx, from, to, opts.Limit)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), rows)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tproduct\tcategory\tqty\tamount")
	for i, row := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", i+1, row.ProductName, row.Category, row.Qty, rt.money.Format(row.AmountCents))
	}
	return tw.Flush()
}
