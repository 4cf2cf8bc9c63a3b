package excuses

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fichaflow/fichaflow/internal/attendance"
	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// FichaDirectory loads membership snapshots for authorization.
type FichaDirectory interface {
	Membership(ctx context.Context, fichaID int64) (authz.Membership, error)
}

// RecordCorrector applies the status correction an approved excuse implies.
// The attendance service satisfies this.
type RecordCorrector interface {
	CorrectRecord(ctx context.Context, sessionID, studentID int64, status attendance.Status, actor shared.Actor) (*attendance.Record, error)
}

// Service owns excuse submission and review.
type Service struct {
	repo      Repository
	fichas    FichaDirectory
	policy    *authz.Policy
	corrector RecordCorrector
}

// NewService constructs an excuse service.
func NewService(repo Repository, fichas FichaDirectory, policy *authz.Policy, corrector RecordCorrector) *Service {
	return &Service{repo: repo, fichas: fichas, policy: policy, corrector: corrector}
}

// Submit files an excuse for a session. The actor must be a student enrolled
// in the session's ficha.
func (s *Service) Submit(ctx context.Context, req SubmitExcuseRequest, actor shared.Actor) (*Excuse, error) {
	if err := s.policy.RequireStudent(actor); err != nil {
		return nil, err
	}
	membership, err := s.sessionMembership(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	res := authz.SessionResource{SessionID: req.SessionID, Ficha: membership}
	if err := s.policy.RequireStudentInFicha(actor, res); err != nil {
		return nil, err
	}

	excuse := Excuse{
		Code:      uuid.NewString(),
		StudentID: actor.ID,
		SessionID: req.SessionID,
		Reason:    req.Reason,
		Status:    StatusPending,
	}
	id, err := s.repo.CreateExcuse(ctx, excuse)
	if err != nil {
		return nil, fmt.Errorf("submit excuse: %w", err)
	}
	excuse.ID = id
	return &excuse, nil
}

// Review resolves a pending excuse. Approval corrects the linked attendance
// record to excused through the record store; rejection leaves it alone.
func (s *Service) Review(ctx context.Context, excuseID int64, verdict Status, actor shared.Actor) (*Excuse, error) {
	if _, err := ParseVerdict(string(verdict)); err != nil {
		return nil, err
	}
	excuse, err := s.repo.GetExcuse(ctx, excuseID)
	if err != nil {
		return nil, fmt.Errorf("get excuse %d: %w", excuseID, err)
	}
	if excuse.Status != StatusPending {
		return nil, fmt.Errorf("excuse %d already reviewed: %w", excuseID, shared.ErrValidation)
	}

	membership, err := s.sessionMembership(ctx, excuse.SessionID)
	if err != nil {
		return nil, err
	}
	res := authz.SessionResource{SessionID: excuse.SessionID, Ficha: membership}
	if err := s.policy.RequireInstructorOfFicha(actor, res); err != nil {
		return nil, err
	}

	// The record correction lands before the excuse flips state, so a failed
	// correction leaves the excuse pending and the review retryable.
	if verdict == StatusApproved {
		if _, err := s.corrector.CorrectRecord(ctx, excuse.SessionID, excuse.StudentID, attendance.StatusExcused, actor); err != nil {
			return nil, fmt.Errorf("correct record for excuse %d: %w", excuseID, err)
		}
	}
	updated, err := s.repo.UpdateExcuseStatus(ctx, excuseID, verdict, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("update excuse %d: %w", excuseID, err)
	}
	return updated, nil
}

// MyExcuses lists the acting student's excuses. Other roles see an empty
// result: scoping, not denial.
func (s *Service) MyExcuses(ctx context.Context, actor shared.Actor) ([]Excuse, error) {
	if actor.Role != shared.RoleStudent {
		return []Excuse{}, nil
	}
	return s.repo.ListByStudent(ctx, actor.ID)
}

// PendingForReview lists pending excuses in the acting instructor's fichas.
func (s *Service) PendingForReview(ctx context.Context, actor shared.Actor) ([]Excuse, error) {
	if err := s.policy.RequireInstructor(actor); err != nil {
		return nil, err
	}
	return s.repo.ListPendingByInstructor(ctx, actor.ID)
}

func (s *Service) sessionMembership(ctx context.Context, sessionID int64) (authz.Membership, error) {
	fichaID, err := s.repo.SessionFicha(ctx, sessionID)
	if err != nil {
		return authz.Membership{}, fmt.Errorf("session %d: %w", sessionID, err)
	}
	membership, err := s.fichas.Membership(ctx, fichaID)
	if err != nil {
		return authz.Membership{}, fmt.Errorf("resolve ficha %d: %w", fichaID, err)
	}
	return membership, nil
}
