package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS identities (
	id           BIGSERIAL PRIMARY KEY,
	external_key TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	department   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS samples (
	id          UUID PRIMARY KEY,
	identity_id BIGINT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
	object_key  TEXT NOT NULL,
	width       INT NOT NULL DEFAULT 0,
	height      INT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attendance (
	id          BIGSERIAL PRIMARY KEY,
	identity_id BIGINT NOT NULL REFERENCES identities(id),
	date        DATE NOT NULL,
	marked_at   TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL CHECK (status IN ('Present', 'Late')),
	method      TEXT NOT NULL CHECK (method IN ('Face', 'Token', 'Manual')),
	recorded_by TEXT NOT NULL,
	UNIQUE (identity_id, date)
);

CREATE INDEX IF NOT EXISTS attendance_date_idx ON attendance (date);

CREATE TABLE IF NOT EXISTS attendance_events (
	id          UUID PRIMARY KEY,
	identity_id BIGINT NOT NULL,
	description TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL
);
`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreDSN(cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreDSN(dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Identities ---

func (s *PostgresStore) CreateIdentity(ctx context.Context, id *models.Identity) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (external_key, name, email, phone, department)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		id.ExternalKey, id.Name, id.Email, id.Phone, id.Department,
	).Scan(&id.ID, &id.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

const identityColumns = `id, external_key, name, email, phone, department, created_at`

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	id := &models.Identity{}
	err := row.Scan(&id.ID, &id.ExternalKey, &id.Name, &id.Email, &id.Phone, &id.Department, &id.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return id, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	ident, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) GetIdentityByKey(ctx context.Context, externalKey string) (*models.Identity, error) {
	ident, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE external_key = $1`, externalKey))
	if err != nil {
		return nil, fmt.Errorf("get identity by key: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY external_key`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var id models.Identity
		if err := rows.Scan(&id.ID, &id.ExternalKey, &id.Name, &id.Email, &id.Phone, &id.Department, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountIdentities(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

// --- Samples ---

func (s *PostgresStore) AddSample(ctx context.Context, smp *models.Sample) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO samples (id, identity_id, object_key, width, height)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		smp.ID, smp.IdentityID, smp.ObjectKey, smp.Width, smp.Height,
	).Scan(&smp.CreatedAt)
	if err != nil {
		return fmt.Errorf("add sample: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSamples(ctx context.Context) ([]models.Sample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, object_key, width, height, created_at FROM samples ORDER BY identity_id, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []models.Sample
	for rows.Next() {
		var smp models.Sample
		if err := rows.Scan(&smp.ID, &smp.IdentityID, &smp.ObjectKey, &smp.Width, &smp.Height, &smp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountSamples(ctx context.Context, identityID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM samples WHERE identity_id = $1`, identityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// --- Attendance ---

func (s *PostgresStore) CreateAttendance(ctx context.Context, rec *models.AttendanceRecord, audit *models.AttendanceEvent) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin attendance tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx,
		`INSERT INTO attendance (identity_id, date, marked_at, status, method, recorded_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (identity_id, date) DO NOTHING
		 RETURNING id`,
		rec.IdentityID, rec.Date, rec.MarkedAt, string(rec.Status), string(rec.Method), rec.RecordedBy,
	).Scan(&rec.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}

	if audit != nil {
		if err := insertAudit(ctx, tx, audit); err != nil {
			slog.Warn("audit event dropped", "identity_id", rec.IdentityID, "error", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit attendance: %w", err)
	}
	return true, nil
}

// insertAudit runs inside a savepoint so a failure leaves the outer insert intact.
func insertAudit(ctx context.Context, tx pgx.Tx, ev *models.AttendanceEvent) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	_, err = sp.Exec(ctx,
		`INSERT INTO attendance_events (id, identity_id, description, timestamp) VALUES ($1, $2, $3, $4)`,
		ev.ID, ev.IdentityID, ev.Description, ev.Timestamp)
	if err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

const attendanceColumns = `id, identity_id, date, marked_at, status, method, recorded_by`

func scanAttendance(row pgx.Row) (models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	var status, method string
	err := row.Scan(&rec.ID, &rec.IdentityID, &rec.Date, &rec.MarkedAt, &status, &method, &rec.RecordedBy)
	rec.Status = models.Status(status)
	rec.Method = models.Method(method)
	return rec, err
}

func (s *PostgresStore) GetAttendance(ctx context.Context, identityID int64, date time.Time) (*models.AttendanceRecord, error) {
	rec, err := scanAttendance(s.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE identity_id = $1 AND date = $2`,
		identityID, CivilDate(date)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) History(ctx context.Context, identityID int64, limit int) ([]models.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE identity_id = $1
		 ORDER BY date DESC, marked_at DESC LIMIT $2`, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Report(ctx context.Context, from, to time.Time) ([]models.ReportRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.identity_id, i.external_key, i.name, a.date, a.marked_at, a.status, a.method
		 FROM attendance a JOIN identities i ON i.id = a.identity_id
		 WHERE a.date >= $1 AND a.date <= $2
		 ORDER BY a.date DESC, a.marked_at DESC`, CivilDate(from), CivilDate(to))
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	defer rows.Close()

	var out []models.ReportRow
	for rows.Next() {
		var r models.ReportRow
		var status, method string
		if err := rows.Scan(&r.IdentityID, &r.ExternalKey, &r.Name, &r.Date, &r.MarkedAt, &status, &method); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r.Status = models.Status(status)
		r.Method = models.Method(method)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountMarked(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attendance WHERE date = $1`, CivilDate(date)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count marked: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountDistinctMarked(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT identity_id) FROM attendance WHERE date >= $1 AND date <= $2`,
		CivilDate(from), CivilDate(to)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distinct marked: %w", err)
	}
	return n, nil
}
