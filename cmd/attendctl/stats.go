package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsDate string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print headcount and attendance rate for a day",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsDate, "date", "", "day to report, YYYY-MM-DD (default today)")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	l, err := rt.ledger()
	if err != nil {
		return err
	}
	asOf := l.Now()
	if statsDate != "" {
		d, err := time.ParseInLocation(time.DateOnly, statsDate, l.Schedule().Location)
		if err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", statsDate)
		}
		asOf = d.Add(12 * time.Hour)
	}

	s, err := l.Statistics(ctx, asOf)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "date:            %s\n", l.Schedule().Date(asOf).Format(time.DateOnly))
	fmt.Fprintf(w, "identities:      %d\n", s.TotalIdentities)
	fmt.Fprintf(w, "present:         %d\n", s.PresentToday)
	fmt.Fprintf(w, "absent:          %d\n", s.AbsentToday)
	fmt.Fprintf(w, "rate:            %.1f%%\n", s.AttendanceRatePercent)
	fmt.Fprintf(w, "present 7 days:  %d\n", s.PresentThisWeek)
	return nil
}
