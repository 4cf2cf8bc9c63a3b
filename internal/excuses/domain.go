package excuses

import (
	"fmt"
	"time"

	"github.com/fichaflow/fichaflow/internal/shared"
)

// Status is the review state of an excuse.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseVerdict validates a review outcome. Pending is not a verdict.
func ParseVerdict(raw string) (Status, error) {
	switch Status(raw) {
	case StatusApproved, StatusRejected:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown verdict %q: %w", raw, shared.ErrValidation)
}

// Excuse is a student-submitted justification for an absence, tied to one
// session. Approving it corrects the linked attendance record to excused.
type Excuse struct {
	ID         int64
	Code       string
	StudentID  int64
	SessionID  int64
	Reason     string
	Status     Status
	ReviewedBy int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SubmitExcuseRequest carries a new excuse.
type SubmitExcuseRequest struct {
	SessionID int64  `json:"session_id" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

// ReviewExcuseRequest carries a review outcome.
type ReviewExcuseRequest struct {
	Verdict string `json:"verdict" validate:"required"`
}
