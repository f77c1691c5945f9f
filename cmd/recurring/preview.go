package main

import (
	"fmt"
	"io"
	"time"

	"github.com/smallbiznis/recurring/internal/recurring/cadence"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"github.com/spf13/cobra"
)

func newPreviewCmd() *cobra.Command {
	var (
		frequency string
		from      string
		day       int
		count     int
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "List upcoming due dates for a frequency and anchor day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			freq := domain.Frequency(frequency)
			if !freq.Valid() {
				return fmt.Errorf("unsupported frequency %q", frequency)
			}
			start, err := time.Parse(time.DateOnly, from)
			if err != nil {
				return fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
			}
			var dayOfMonth *int
			if cmd.Flags().Changed("day") {
				if day < 1 || day > 31 {
					return fmt.Errorf("--day must be between 1 and 31")
				}
				dayOfMonth = &day
			}
			return printPreview(cmd.OutOrStdout(), cadence.Upcoming(freq, start, dayOfMonth, count))
		},
	}
	cmd.Flags().StringVar(&frequency, "frequency", string(domain.FrequencyMonthly), "weekly|biweekly|monthly|quarterly|semiannual|annual")
	cmd.Flags().StringVar(&from, "from", time.Now().UTC().Format(time.DateOnly), "current due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&day, "day", 0, "anchor day of month (1-31)")
	cmd.Flags().IntVar(&count, "count", 6, "number of dates to list")
	return cmd
}

func printPreview(w io.Writer, dates []time.Time) error {
	for i, d := range dates {
		if _, err := fmt.Fprintf(w, "%2d  %s  %s\n", i+1, d.Format(time.DateOnly), d.Weekday()); err != nil {
			return err
		}
	}
	return nil
}
