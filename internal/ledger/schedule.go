package ledger

import (
	"fmt"
	"time"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
)

// Schedule decides the civil date of a mark and whether it is late.
type Schedule struct {
	StartHour   int
	StartMinute int
	Grace       time.Duration
	Location    *time.Location
}

func NewSchedule(cfg config.AttendanceConfig) (Schedule, error) {
	start, err := time.Parse("15:04", cfg.ClassStart)
	if err != nil {
		return Schedule{}, fmt.Errorf("parse class start %q: %w", cfg.ClassStart, err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{
		StartHour:   start.Hour(),
		StartMinute: start.Minute(),
		Grace:       cfg.Grace(),
		Location:    loc,
	}, nil
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// Date is the civil date of when in the schedule's zone, as midnight UTC.
func (s Schedule) Date(when time.Time) time.Time {
	return storage.CivilDate(when.In(s.loc()))
}

// Status is Late only when strictly more than Grace has passed since class start,
// counted in whole seconds. Marks before class start are Present.
func (s Schedule) Status(when time.Time) models.Status {
	local := when.Truncate(time.Second).In(s.loc())
	y, m, d := local.Date()
	start := time.Date(y, m, d, s.StartHour, s.StartMinute, 0, 0, s.loc())
	if local.Sub(start) > s.Grace {
		return models.StatusLate
	}
	return models.StatusPresent
}
