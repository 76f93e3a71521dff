package storage

import (
	"context"
	"errors"
	"time"

	"github.com/your-org/attendance/internal/models"
)

// ErrDuplicateKey is returned when an identity's external key is already enrolled.
var ErrDuplicateKey = errors.New("duplicate external key")

// Store is the relational identity store and attendance ledger backend.
// Lookups return (nil, nil) when nothing matches.
type Store interface {
	CreateIdentity(ctx context.Context, id *models.Identity) error
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
	GetIdentityByKey(ctx context.Context, externalKey string) (*models.Identity, error)
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	CountIdentities(ctx context.Context) (int, error)

	AddSample(ctx context.Context, s *models.Sample) error
	ListSamples(ctx context.Context) ([]models.Sample, error)
	CountSamples(ctx context.Context, identityID int64) (int, error)

	// CreateAttendance inserts rec unless a record for (IdentityID, Date) exists.
	// The audit event shares the transaction but its failure never undoes the record.
	CreateAttendance(ctx context.Context, rec *models.AttendanceRecord, audit *models.AttendanceEvent) (bool, error)
	GetAttendance(ctx context.Context, identityID int64, date time.Time) (*models.AttendanceRecord, error)
	History(ctx context.Context, identityID int64, limit int) ([]models.AttendanceRecord, error)
	Report(ctx context.Context, from, to time.Time) ([]models.ReportRow, error)
	CountMarked(ctx context.Context, date time.Time) (int, error)
	CountDistinctMarked(ctx context.Context, from, to time.Time) (int, error)

	Ping(ctx context.Context) error
	Close()
}

// CivilDate truncates t to its calendar date in t's own location, returned as midnight UTC.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
