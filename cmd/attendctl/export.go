package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/ledger"
)

var (
	exportFrom string
	exportTo   string
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write attendance records for a date range as CSV",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "first day, YYYY-MM-DD (default today)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "last day, YYYY-MM-DD (default --from)")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
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
	loc := l.Schedule().Location

	from, err := parseDay(exportFrom, l.Now().In(loc))
	if err != nil {
		return err
	}
	to, err := parseDay(exportTo, from)
	if err != nil {
		return err
	}
	if to.Before(from) {
		from, to = to, from
	}

	rows, err := l.Report(ctx, from, to)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}
	if err := ledger.WriteCSV(w, rows, loc); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", len(rows), exportOut)
	}
	return nil
}

// parseDay reads YYYY-MM-DD as a civil date; empty means fallback's date.
func parseDay(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return time.Date(fallback.Year(), fallback.Month(), fallback.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}
