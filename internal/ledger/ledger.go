package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

// ErrUnknownIdentity is returned by read projections for an unenrolled key.
// Mark reports it as an Outcome instead.
var ErrUnknownIdentity = errors.New("unknown identity")

var ErrInvalidMethod = errors.New("invalid attendance method")

const DefaultRecorder = "System"

type Outcome string

const (
	Created         Outcome = "created"
	AlreadyMarked   Outcome = "already_marked"
	UnknownIdentity Outcome = "unknown_identity"
)

// IdentityRef names an identity by internal id or, when ID is zero, by external key.
type IdentityRef struct {
	ID  int64
	Key string
}

func ByID(id int64) IdentityRef    { return IdentityRef{ID: id} }
func ByKey(key string) IdentityRef { return IdentityRef{Key: key} }

func (r IdentityRef) String() string {
	if r.ID != 0 {
		return fmt.Sprintf("id:%d", r.ID)
	}
	return "key:" + r.Key
}

// MarkResult carries the record that now stands for the day: the new one on
// Created, the untouched existing one on AlreadyMarked.
type MarkResult struct {
	Outcome  Outcome
	Identity *models.Identity
	Record   *models.AttendanceRecord
}

type Store interface {
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
	GetIdentityByKey(ctx context.Context, externalKey string) (*models.Identity, error)
	CountIdentities(ctx context.Context) (int, error)
	CreateAttendance(ctx context.Context, rec *models.AttendanceRecord, audit *models.AttendanceEvent) (bool, error)
	GetAttendance(ctx context.Context, identityID int64, date time.Time) (*models.AttendanceRecord, error)
	History(ctx context.Context, identityID int64, limit int) ([]models.AttendanceRecord, error)
	Report(ctx context.Context, from, to time.Time) ([]models.ReportRow, error)
	CountMarked(ctx context.Context, date time.Time) (int, error)
	CountDistinctMarked(ctx context.Context, from, to time.Time) (int, error)
}

// Notifier is told about every newly created record. Failures are logged only.
type Notifier interface {
	AttendanceMarked(ctx context.Context, ev models.AttendanceMarked) error
}

type Ledger struct {
	store        Store
	schedule     Schedule
	notifier     Notifier
	historyLimit int
	now          func() time.Time
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithHistoryLimit(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.historyLimit = n
		}
	}
}

func New(store Store, schedule Schedule, opts ...Option) *Ledger {
	l := &Ledger{store: store, schedule: schedule, historyLimit: 30, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) Schedule() Schedule { return l.schedule }

// Now is the ledger's clock.
func (l *Ledger) Now() time.Time { return l.now() }

func (l *Ledger) resolve(ctx context.Context, ref IdentityRef) (*models.Identity, error) {
	if ref.ID != 0 {
		return l.store.GetIdentity(ctx, ref.ID)
	}
	if ref.Key == "" {
		return nil, nil
	}
	return l.store.GetIdentityByKey(ctx, ref.Key)
}

// Mark records attendance for ref on the civil date of when. The only
// errors are invalid input and storage failures; a failed call never leaves
// a partial record, so it is safe to retry.
func (l *Ledger) Mark(ctx context.Context, ref IdentityRef, method models.Method, recordedBy string, when time.Time) (MarkResult, error) {
	if _, ok := models.ParseMethod(string(method)); !ok {
		return MarkResult{}, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if recordedBy == "" {
		recordedBy = DefaultRecorder
	}

	ident, err := l.resolve(ctx, ref)
	if err != nil {
		return MarkResult{}, fmt.Errorf("resolve identity %s: %w", ref, err)
	}
	if ident == nil {
		observability.MarksTotal.WithLabelValues(string(method), string(UnknownIdentity)).Inc()
		return MarkResult{Outcome: UnknownIdentity}, nil
	}

	rec := &models.AttendanceRecord{
		IdentityID: ident.ID,
		Date:       l.schedule.Date(when),
		MarkedAt:   when,
		Status:     l.schedule.Status(when),
		Method:     method,
		RecordedBy: recordedBy,
	}
	audit := &models.AttendanceEvent{
		ID:          uuid.New(),
		IdentityID:  ident.ID,
		Description: fmt.Sprintf("%s (%s) marked %s via %s by %s", ident.Name, ident.ExternalKey, rec.Status, method, recordedBy),
		Timestamp:   when,
	}

	created, err := l.store.CreateAttendance(ctx, rec, audit)
	if err != nil {
		return MarkResult{}, err
	}

	if !created {
		existing, err := l.store.GetAttendance(ctx, ident.ID, rec.Date)
		if err != nil {
			return MarkResult{}, fmt.Errorf("load existing attendance: %w", err)
		}
		observability.MarksTotal.WithLabelValues(string(method), string(AlreadyMarked)).Inc()
		return MarkResult{Outcome: AlreadyMarked, Identity: ident, Record: existing}, nil
	}

	observability.MarksTotal.WithLabelValues(string(method), string(Created)).Inc()
	slog.Info("attendance marked",
		"identity_id", ident.ID,
		"external_key", ident.ExternalKey,
		"status", rec.Status,
		"method", method,
		"recorded_by", recordedBy)

	if l.notifier != nil {
		if err := l.notifier.AttendanceMarked(ctx, l.event(ident, rec)); err != nil {
			slog.Warn("publish attendance event", "identity_id", ident.ID, "error", err)
		}
	}
	return MarkResult{Outcome: Created, Identity: ident, Record: rec}, nil
}

func (l *Ledger) event(ident *models.Identity, rec *models.AttendanceRecord) models.AttendanceMarked {
	local := rec.MarkedAt.In(l.schedule.loc())
	return models.AttendanceMarked{
		EventID:     uuid.New(),
		IdentityID:  ident.ID,
		ExternalKey: ident.ExternalKey,
		Name:        ident.Name,
		Date:        rec.DateString(),
		Time:        local.Format(time.TimeOnly),
		Status:      rec.Status,
		Method:      rec.Method,
		RecordedBy:  rec.RecordedBy,
	}
}

// History returns the identity's most recent records, newest first.
func (l *Ledger) History(ctx context.Context, externalKey string, limit int) (*models.Identity, []models.AttendanceRecord, error) {
	ident, err := l.store.GetIdentityByKey(ctx, externalKey)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve identity: %w", err)
	}
	if ident == nil {
		return nil, nil, ErrUnknownIdentity
	}
	if limit <= 0 {
		limit = l.historyLimit
	}
	recs, err := l.store.History(ctx, ident.ID, limit)
	if err != nil {
		return nil, nil, err
	}
	return ident, recs, nil
}

// Report lists records with from <= date <= to, newest first. Zero bounds
// default to today.
func (l *Ledger) Report(ctx context.Context, from, to time.Time) ([]models.ReportRow, error) {
	today := l.schedule.Date(l.now())
	if from.IsZero() {
		from = today
	}
	if to.IsZero() {
		to = today
	}
	if to.Before(from) {
		from, to = to, from
	}
	return l.store.Report(ctx, from, to)
}

// Statistics summarises attendance on asOf's civil date and the seven days before it.
func (l *Ledger) Statistics(ctx context.Context, asOf time.Time) (models.Statistics, error) {
	day := l.schedule.Date(asOf)

	total, err := l.store.CountIdentities(ctx)
	if err != nil {
		return models.Statistics{}, err
	}
	present, err := l.store.CountMarked(ctx, day)
	if err != nil {
		return models.Statistics{}, err
	}
	week, err := l.store.CountDistinctMarked(ctx, day.AddDate(0, 0, -7), day)
	if err != nil {
		return models.Statistics{}, err
	}

	st := models.Statistics{
		TotalIdentities: total,
		PresentToday:    present,
		AbsentToday:     max(total-present, 0),
		PresentThisWeek: week,
	}
	if total > 0 {
		st.AttendanceRatePercent = math.Round(float64(present)/float64(total)*10000) / 100
	}
	return st, nil
}
