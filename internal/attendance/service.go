package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// FichaDirectory loads membership snapshots for authorization and fan-out.
type FichaDirectory interface {
	Membership(ctx context.Context, fichaID int64) (authz.Membership, error)
}

// ReportInvalidator is notified after attendance writes so cached report
// documents can be recomputed. Optional.
type ReportInvalidator interface {
	Bump(ctx context.Context) error
}

// Service owns the attendance-session lifecycle and the record store.
//
// The handler layer consults the policy before calling in; every mutation
// here re-checks authorization against a fresh membership snapshot anyway,
// so a regression in the outer gate cannot open a write path.
type Service struct {
	repo        Repository
	fichas      FichaDirectory
	policy      *authz.Policy
	invalidator ReportInvalidator
}

// NewService constructs an attendance service.
func NewService(repo Repository, fichas FichaDirectory, policy *authz.Policy) *Service {
	return &Service{repo: repo, fichas: fichas, policy: policy}
}

// SetReportInvalidator wires the optional cache invalidation hook.
func (s *Service) SetReportInvalidator(inv ReportInvalidator) {
	s.invalidator = inv
}

// CreateSession creates a session and fans out one unset record per student
// enrolled in the ficha at this moment. The insert and the fan-out share one
// transaction: a failure anywhere leaves neither a session nor any records.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest, actor shared.Actor) (*Session, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", req.Date, shared.ErrValidation)
	}
	if _, err := time.Parse("15:04", req.StartTime); err != nil {
		return nil, fmt.Errorf("start_time %q: %w", req.StartTime, shared.ErrValidation)
	}

	membership, err := s.fichas.Membership(ctx, req.FichaID)
	if err != nil {
		return nil, fmt.Errorf("resolve ficha %d: %w", req.FichaID, err)
	}
	if err := s.policy.Decide(actor, authz.ActionCreate, authz.FichaResource{Membership: membership}); err != nil {
		return nil, err
	}

	session := Session{
		FichaID:   req.FichaID,
		Date:      date,
		StartTime: req.StartTime,
		IsActive:  false,
		CreatedBy: actor.ID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateSession(ctx, session)
		if err != nil {
			return err
		}
		session.ID = id
		for _, studentID := range membership.StudentIDs {
			if err := tx.InsertRecord(ctx, id, studentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session with fan-out: %v: %w", err, shared.ErrInternal)
	}

	s.bump(ctx)
	return &session, nil
}

// ToggleActivation flips is_active. Idempotent in the sense that any
// authorized actor may call it any number of times; records are untouched.
func (s *Service) ToggleActivation(ctx context.Context, sessionID int64, actor shared.Actor) (*Session, error) {
	session, membership, err := s.sessionWithMembership(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := authz.SessionResource{SessionID: session.ID, Ficha: membership}
	if err := s.policy.RequireInstructorOfFicha(actor, res); err != nil {
		return nil, err
	}
	updated, err := s.repo.ToggleSessionActive(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("toggle session %d: %w", sessionID, err)
	}
	return updated, nil
}

// GetSession returns session detail for ficha members (assigned instructors,
// enrolled students) and admins. Everyone else is denied outright; contrast
// with the scoped listings, which silently narrow instead.
func (s *Service) GetSession(ctx context.Context, sessionID int64, actor shared.Actor) (*Session, error) {
	session, membership, err := s.sessionWithMembership(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := authz.SessionResource{SessionID: session.ID, Ficha: membership}
	if err := s.policy.RequireFichaMember(actor, res); err != nil {
		return nil, err
	}
	return session, nil
}

// ListForSession returns a session's attendance log ordered by student id.
// Restricted to assigned instructors and admins.
func (s *Service) ListForSession(ctx context.Context, sessionID int64, actor shared.Actor) ([]Record, error) {
	session, membership, err := s.sessionWithMembership(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := authz.SessionResource{SessionID: session.ID, Ficha: membership}
	if err := s.policy.RequireInstructorOfFicha(actor, res); err != nil {
		return nil, err
	}
	return s.repo.ListRecordsBySession(ctx, sessionID)
}

// UpdateRecordStatus is the manual correction path. The record is the unit of
// mutation, but authorization reasons about the owning ficha, supplied as the
// explicit override resource.
func (s *Service) UpdateRecordStatus(ctx context.Context, recordID int64, status Status, actor shared.Actor) (*Record, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	record, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", recordID, err)
	}
	return s.applyStatus(ctx, record, status, actor)
}

// CorrectRecord updates the record identified by (session, student). The
// excuse-review workflow calls this after approving an excuse.
func (s *Service) CorrectRecord(ctx context.Context, sessionID, studentID int64, status Status, actor shared.Actor) (*Record, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	record, err := s.repo.GetRecordBySessionStudent(ctx, sessionID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get record for session %d student %d: %w", sessionID, studentID, err)
	}
	return s.applyStatus(ctx, record, status, actor)
}

func (s *Service) applyStatus(ctx context.Context, record *Record, status Status, actor shared.Actor) (*Record, error) {
	session, membership, err := s.sessionWithMembership(ctx, record.SessionID)
	if err != nil {
		return nil, err
	}
	direct := authz.RecordResource{RecordID: record.ID, SessionID: session.ID, Ficha: membership}
	override := authz.FichaResource{Membership: membership}
	if err := s.policy.DecideWith(actor, authz.ActionUpdate, direct, override); err != nil {
		return nil, err
	}

	// Last-write-wins: no version stamp is tracked, concurrent corrections to
	// the same record resolve to whichever lands last.
	updated, err := s.repo.UpdateRecordStatus(ctx, record.ID, status, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("update record %d: %w", record.ID, err)
	}
	s.bump(ctx)
	return updated, nil
}

// ListScoped is the read-side mirror of the policy: students see their own
// records, instructors the records of fichas they teach, admins everything.
func (s *Service) ListScoped(ctx context.Context, actor shared.Actor) ([]Record, error) {
	switch actor.Role {
	case shared.RoleStudent:
		return s.repo.ListRecordsByStudent(ctx, actor.ID, nil)
	case shared.RoleInstructor:
		return s.repo.ListRecordsByInstructor(ctx, actor.ID)
	case shared.RoleAdmin:
		return s.repo.ListAllRecords(ctx)
	}
	return nil, fmt.Errorf("attendance: unknown role %q: %w", actor.Role, shared.ErrPermissionDenied)
}

// MyAbsences lists the acting student's absent records. For any other role
// the result is empty: this is scoping, not a denial.
func (s *Service) MyAbsences(ctx context.Context, actor shared.Actor) ([]Record, error) {
	if actor.Role != shared.RoleStudent {
		return []Record{}, nil
	}
	status := StatusAbsent
	return s.repo.ListRecordsByStudent(ctx, actor.ID, &status)
}

// MyRecords lists the acting student's records with an optional status filter.
func (s *Service) MyRecords(ctx context.Context, actor shared.Actor, statusFilter *Status) ([]Record, error) {
	if actor.Role != shared.RoleStudent {
		return []Record{}, nil
	}
	return s.repo.ListRecordsByStudent(ctx, actor.ID, statusFilter)
}

// TodaySessions lists the acting instructor's sessions for the given day.
// The query is pre-scoped to the actor, so only the role gate applies.
func (s *Service) TodaySessions(ctx context.Context, actor shared.Actor, day time.Time) ([]Session, error) {
	if err := s.policy.RequireInstructor(actor); err != nil {
		return nil, err
	}
	return s.repo.SessionsByInstructorOn(ctx, actor.ID, day)
}

func (s *Service) sessionWithMembership(ctx context.Context, sessionID int64) (*Session, authz.Membership, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, authz.Membership{}, fmt.Errorf("session %d: %w", sessionID, shared.ErrNotFound)
		}
		return nil, authz.Membership{}, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	membership, err := s.fichas.Membership(ctx, session.FichaID)
	if err != nil {
		return nil, authz.Membership{}, fmt.Errorf("resolve ficha %d: %w", session.FichaID, err)
	}
	return session, membership, nil
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.Bump(ctx)
}
