package models

import (
	"time"

	"github.com/google/uuid"
)

// TrainingJob is published to NATS whenever the enrolled corpus changes.
type TrainingJob struct {
	JobID       uuid.UUID `json:"job_id"`
	Reason      string    `json:"reason"`
	IdentityID  int64     `json:"identity_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ModelUpdated announces a freshly persisted snapshot.
type ModelUpdated struct {
	Version   string    `json:"version"`
	Labels    int       `json:"labels"`
	Samples   int       `json:"samples"`
	TrainedAt time.Time `json:"trained_at"`
}

// AttendanceMarked is broadcast after a record is created.
type AttendanceMarked struct {
	EventID     uuid.UUID `json:"event_id"`
	IdentityID  int64     `json:"identity_id"`
	ExternalKey string    `json:"external_key"`
	Name        string    `json:"name"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Status      Status    `json:"status"`
	Method      Method    `json:"method"`
	RecordedBy  string    `json:"recorded_by"`
}
