package models

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
)

type Method string

const (
	MethodFace   Method = "Face"
	MethodToken  Method = "Token"
	MethodManual Method = "Manual"
)

// ParseMethod accepts the canonical spelling only.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodFace, MethodToken, MethodManual:
		return Method(s), true
	}
	return "", false
}

// AttendanceRecord is immutable once created. At most one exists per (IdentityID, Date).
type AttendanceRecord struct {
	ID         int64     `json:"id" db:"id"`
	IdentityID int64     `json:"identity_id" db:"identity_id"`
	Date       time.Time `json:"date" db:"date"` // civil date, midnight UTC
	MarkedAt   time.Time `json:"marked_at" db:"marked_at"`
	Status     Status    `json:"status" db:"status"`
	Method     Method    `json:"method" db:"method"`
	RecordedBy string    `json:"recorded_by" db:"recorded_by"`
}

// DateString formats the record's civil date.
func (r AttendanceRecord) DateString() string {
	return r.Date.Format(time.DateOnly)
}

// AttendanceEvent is the append-only audit trail entry.
type AttendanceEvent struct {
	ID          uuid.UUID `json:"id" db:"id"`
	IdentityID  int64     `json:"identity_id" db:"identity_id"`
	Description string    `json:"description" db:"description"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// ReportRow is one line of a date-range report joined with identity details.
type ReportRow struct {
	IdentityID  int64     `json:"identity_id"`
	ExternalKey string    `json:"external_key"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	MarkedAt    time.Time `json:"marked_at"`
	Status      Status    `json:"status"`
	Method      Method    `json:"method"`
}

type Statistics struct {
	TotalIdentities       int     `json:"total_identities"`
	PresentToday          int     `json:"present_today"`
	AbsentToday           int     `json:"absent_today"`
	AttendanceRatePercent float64 `json:"attendance_rate_percent"`
	PresentThisWeek       int     `json:"present_this_week"`
}
