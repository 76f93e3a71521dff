package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/your-org/attendance/internal/models"
)

// SQLiteStore is the single-node backend. Dates are stored as YYYY-MM-DD text
// so the (identity_id, date) unique index compares civil dates exactly.
type SQLiteStore struct {
	db *gorm.DB
}

type attendanceRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	IdentityID int64     `gorm:"not null;uniqueIndex:idx_attendance_identity_date"`
	Date       string    `gorm:"size:10;not null;uniqueIndex:idx_attendance_identity_date;index"`
	MarkedAt   time.Time `gorm:"not null"`
	Status     string    `gorm:"size:16;not null"`
	Method     string    `gorm:"size:16;not null"`
	RecordedBy string    `gorm:"not null"`
}

func (attendanceRow) TableName() string { return "attendance" }

type attendanceEventRow struct {
	ID          string    `gorm:"primaryKey"`
	IdentityID  int64     `gorm:"not null;index"`
	Description string    `gorm:"not null"`
	Timestamp   time.Time `gorm:"not null"`
}

func (attendanceEventRow) TableName() string { return "attendance_events" }

func (r attendanceRow) record() models.AttendanceRecord {
	d, _ := time.Parse(time.DateOnly, r.Date)
	return models.AttendanceRecord{
		ID:         r.ID,
		IdentityID: r.IdentityID,
		Date:       d,
		MarkedAt:   r.MarkedAt,
		Status:     models.Status(r.Status),
		Method:     models.Method(r.Method),
		RecordedBy: r.RecordedBy,
	}
}

func dateKey(t time.Time) string {
	return CivilDate(t).Format(time.DateOnly)
}

// OpenSQLite opens (or creates) the database file, applies PRAGMAs and migrates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer connection keeps concurrent marks from tripping SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.AutoMigrate(&models.Identity{}, &models.Sample{}, &attendanceRow{}, &attendanceEventRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func (s *SQLiteStore) CreateIdentity(ctx context.Context, id *models.Identity) error {
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(id).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	var ident models.Identity
	err := s.db.WithContext(ctx).First(&ident, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &ident, nil
}

func (s *SQLiteStore) GetIdentityByKey(ctx context.Context, externalKey string) (*models.Identity, error) {
	var ident models.Identity
	err := s.db.WithContext(ctx).First(&ident, "external_key = ?", externalKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity by key: %w", err)
	}
	return &ident, nil
}

func (s *SQLiteStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	var out []models.Identity
	if err := s.db.WithContext(ctx).Order("external_key").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CountIdentities(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Identity{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) AddSample(ctx context.Context, smp *models.Sample) error {
	if smp.ID == uuid.Nil {
		smp.ID = uuid.New()
	}
	if smp.CreatedAt.IsZero() {
		smp.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(smp).Error; err != nil {
		return fmt.Errorf("add sample: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSamples(ctx context.Context) ([]models.Sample, error) {
	var out []models.Sample
	if err := s.db.WithContext(ctx).Order("identity_id, created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CountSamples(ctx context.Context, identityID int64) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Sample{}).Where("identity_id = ?", identityID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) CreateAttendance(ctx context.Context, rec *models.AttendanceRecord, audit *models.AttendanceEvent) (bool, error) {
	row := attendanceRow{
		IdentityID: rec.IdentityID,
		Date:       dateKey(rec.Date),
		MarkedAt:   rec.MarkedAt.UTC(),
		Status:     string(rec.Status),
		Method:     string(rec.Method),
		RecordedBy: rec.RecordedBy,
	}

	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true

		if audit != nil {
			ev := attendanceEventRow{
				ID:          audit.ID.String(),
				IdentityID:  audit.IdentityID,
				Description: audit.Description,
				Timestamp:   audit.Timestamp.UTC(),
			}
			// Nested transaction maps to a savepoint.
			if err := tx.Transaction(func(sp *gorm.DB) error { return sp.Create(&ev).Error }); err != nil {
				slog.Warn("audit event dropped", "identity_id", rec.IdentityID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	if created {
		rec.ID = row.ID
	}
	return created, nil
}

func (s *SQLiteStore) GetAttendance(ctx context.Context, identityID int64, date time.Time) (*models.AttendanceRecord, error) {
	var row attendanceRow
	err := s.db.WithContext(ctx).
		Where("identity_id = ? AND date = ?", identityID, dateKey(date)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	rec := row.record()
	return &rec, nil
}

func (s *SQLiteStore) History(ctx context.Context, identityID int64, limit int) ([]models.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	var rows []attendanceRow
	err := s.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("date DESC, marked_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	out := make([]models.AttendanceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (s *SQLiteStore) Report(ctx context.Context, from, to time.Time) ([]models.ReportRow, error) {
	type joined struct {
		attendanceRow
		ExternalKey string
		Name        string
	}
	var rows []joined
	err := s.db.WithContext(ctx).
		Table("attendance AS a").
		Select("a.*, i.external_key, i.name").
		Joins("JOIN identities i ON i.id = a.identity_id").
		Where("a.date >= ? AND a.date <= ?", dateKey(from), dateKey(to)).
		Order("a.date DESC, a.marked_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	out := make([]models.ReportRow, 0, len(rows))
	for _, r := range rows {
		rec := r.record()
		out = append(out, models.ReportRow{
			IdentityID:  rec.IdentityID,
			ExternalKey: r.ExternalKey,
			Name:        r.Name,
			Date:        rec.Date,
			MarkedAt:    rec.MarkedAt,
			Status:      rec.Status,
			Method:      rec.Method,
		})
	}
	return out, nil
}

func (s *SQLiteStore) CountMarked(ctx context.Context, date time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&attendanceRow{}).Where("date = ?", dateKey(date)).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count marked: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) CountDistinctMarked(ctx context.Context, from, to time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&attendanceRow{}).
		Where("date >= ? AND date <= ?", dateKey(from), dateKey(to)).
		Distinct("identity_id").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count distinct marked: %w", err)
	}
	return int(n), nil
}
