package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/idgen"
	"github.com/smallbiznis/recurring/internal/invoice"
	"github.com/smallbiznis/recurring/internal/notification"
	"github.com/smallbiznis/recurring/internal/observability"
	"github.com/smallbiznis/recurring/internal/recurring"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"github.com/smallbiznis/recurring/internal/scheduler"
	"github.com/smallbiznis/recurring/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newRunCmd() *cobra.Command {
	var asOfFlag string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate every profile due on or before the as-of date, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var asOf time.Time
			if asOfFlag != "" {
				parsed, err := time.Parse(time.DateOnly, asOfFlag)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
				asOf = parsed
			}

			var (
				sched  *scheduler.Scheduler
				holder *config.RecurringConfigHolder
				clk    clock.Clock
			)
			app := fx.New(
				config.Module,
				observability.Module,
				idgen.Module,
				db.Module,
				clock.Module,
				recurring.Module,
				invoice.Module,
				notification.Module,
				scheduler.Module,
				fx.Populate(&sched, &holder, &clk),
				fx.NopLogger,
			)
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = app.Stop(stopCtx)
			}()

			if asOf.IsZero() {
				asOf = today(clk.Now(), holder)
			}
			outcomes, err := sched.RunOnce(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			return printOutcomes(cmd.OutOrStdout(), outcomes)
		},
	}
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "as-of date (YYYY-MM-DD), defaults to today in the scheduler timezone")
	return cmd
}

// today matches the date the scheduler loop would pick for now.
func today(now time.Time, holder *config.RecurringConfigHolder) time.Time {
	return clock.Date(now, holder.Get().Location())
}

func printOutcomes(w io.Writer, outcomes []domain.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tOUTCOME\tOCCURRENCE\tINVOICE\tNOTE")
	failed := 0
	for _, out := range outcomes {
		invoiceID := "-"
		if out.InvoiceID != 0 {
			invoiceID = out.InvoiceID.String()
		}
		note := ""
		switch {
		case out.Err != nil:
			note = out.Err.Error()
			failed++
		case out.Degraded:
			note = "notify failed: " + out.NotifyErr.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", out.ProfileID, out.Kind, out.OccurrenceIndex, invoiceID, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d profiles, %d failed\n", len(outcomes), failed)
	return err
}
