package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

type SessionStatus struct {
	Open    bool                   `json:"open"`
	Session *domain.CashSession    `json:"session,omitempty"`
	Summary *domain.SessionSummary `json:"summary,omitempty"`
}

func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect cash sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the open cash session and its running totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := operatorContext(cmd.Context())
			rt, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			status := SessionStatus{}
			session, err := rt.svc.Sessions.Current(ctx)
			switch {
			case errors.Is(err, store.ErrNoOpenSession):
			case err != nil:
				return err
			default:
				status.Open = true
				status.Session = &session
				summaries, err := rt.svc.Reports.SessionSummary(ctx, session.OpenedAt)
				if err != nil {
					return err
				}
				for i := range summaries {
					if summaries[i].SessionID == session.ID {
						status.Summary = &summaries[i]
					}
				}
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			return printSessionStatus(cmd, rt, status)
		},
	})
	return cmd
}

func printSessionStatus(cmd *cobra.Command, rt *runtime, status SessionStatus) error {
	out := cmd.OutOrStdout()
	if !status.Open {
		_, err := fmt.Fprintln(out, "no open session")
		return err
	}
	s := status.Session
	fmt.Fprintf(out, "session #%d open since %s by %s\n", s.ID, s.OpenedAt.Format("2006-01-02 15:04"), s.Responsible)
	fmt.Fprintf(out, "  opening:  %s\n", rt.money.Format(s.OpeningAmountCents))
	if sum := status.Summary; sum != nil {
		fmt.Fprintf(out, "  orders:   %d\n", sum.OrderCount)
		fmt.Fprintf(out, "  sales:    %s\n", rt.money.Format(sum.TotalSalesCents))
		fmt.Fprintf(out, "  open:     %s\n", rt.money.Format(sum.OpenSalesCents))
		fmt.Fprintf(out, "  expected: %s\n", rt.money.Format(s.OpeningAmountCents+sum.SettledSalesCents))
		for _, method := range slices.Sorted(maps.Keys(sum.PaymentsByMethod)) {
			fmt.Fprintf(out, "  paid %-8s %s\n", method+":", rt.money.Format(sum.PaymentsByMethod[method]))
		}
	}
	return nil
}
