package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/your-org/attendance/internal/models"
)

var csvHeader = []string{"External Key", "Name", "Date", "Time", "Status", "Method"}

// WriteCSV renders report rows with times in loc.
func WriteCSV(w io.Writer, rows []models.ReportRow, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.ExternalKey,
			r.Name,
			r.Date.Format(time.DateOnly),
			r.MarkedAt.In(loc).Format(time.TimeOnly),
			string(r.Status),
			string(r.Method),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
