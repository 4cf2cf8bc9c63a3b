package attendance

import (
	"fmt"
	"time"

	"github.com/fichaflow/fichaflow/internal/shared"
)

// Status is the per-record attendance state. New records start as unset and
// stay that way until an instructor or the excuse workflow corrects them.
type Status string

const (
	StatusUnset   Status = "unset"
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusUnset, StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown status %q: %w", raw, shared.ErrValidation)
}

// Attended reports whether the status counts toward attendance percentage.
func (s Status) Attended() bool {
	return s == StatusPresent || s == StatusLate || s == StatusExcused
}

// Session is one attendance-taking occasion belonging to exactly one ficha.
type Session struct {
	ID        int64
	FichaID   int64
	Date      time.Time
	StartTime string
	IsActive  bool
	CreatedBy int64
	CreatedAt time.Time
}

// Record is the per-(session, student) status cell. The pair is unique; the
// student was enrolled in the session's ficha when the session was created.
type Record struct {
	ID        int64
	SessionID int64
	StudentID int64
	Status    Status
	UpdatedBy int64
	UpdatedAt time.Time
}

// CreateSessionRequest carries the fields for a new session.
type CreateSessionRequest struct {
	FichaID   int64  `json:"ficha_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
}

// UpdateRecordRequest carries a manual status correction.
type UpdateRecordRequest struct {
	Status string `json:"status" validate:"required"`
}
