package fichas

import (
	"context"
	"fmt"
	"time"

	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// Service wraps ficha business rules. Writes are admin-only; the handler gate
// and the in-service check are deliberately independent layers.
type Service struct {
	repo   Repository
	policy *authz.Policy
}

// NewService constructs a ficha service.
func NewService(repo Repository, policy *authz.Policy) *Service {
	return &Service{repo: repo, policy: policy}
}

// CreateFicha registers a new cohort. Admin only.
func (s *Service) CreateFicha(ctx context.Context, req CreateFichaRequest, actor shared.Actor) (*Ficha, error) {
	if err := s.policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date %q: %w", req.StartDate, shared.ErrValidation)
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end_date %q: %w", req.EndDate, shared.ErrValidation)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_date before start_date: %w", shared.ErrValidation)
	}

	ficha := Ficha{
		Code:          req.Code,
		ProgramName:   req.ProgramName,
		StartDate:     start,
		EndDate:       end,
		InstructorIDs: req.InstructorIDs,
		StudentIDs:    req.StudentIDs,
	}
	id, err := s.repo.CreateFicha(ctx, ficha)
	if err != nil {
		return nil, fmt.Errorf("create ficha: %w", err)
	}
	ficha.ID = id
	return &ficha, nil
}

// UpdateFicha applies partial updates, including membership set changes.
// Changing membership never rewrites attendance records of existing sessions;
// record existence is fixed at session-creation time.
func (s *Service) UpdateFicha(ctx context.Context, id int64, req UpdateFichaRequest, actor shared.Actor) (*Ficha, error) {
	if err := s.policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetFicha(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get ficha: %w", err)
	}

	if req.Code != nil {
		existing.Code = *req.Code
	}
	if req.ProgramName != nil {
		existing.ProgramName = *req.ProgramName
	}
	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			return nil, fmt.Errorf("start_date %q: %w", *req.StartDate, shared.ErrValidation)
		}
		existing.StartDate = start
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate)
		if err != nil {
			return nil, fmt.Errorf("end_date %q: %w", *req.EndDate, shared.ErrValidation)
		}
		existing.EndDate = end
	}
	if req.InstructorIDs != nil {
		existing.InstructorIDs = *req.InstructorIDs
	}
	if req.StudentIDs != nil {
		existing.StudentIDs = *req.StudentIDs
	}

	if err := s.repo.UpdateFicha(ctx, *existing); err != nil {
		return nil, fmt.Errorf("update ficha: %w", err)
	}
	return existing, nil
}

// GetFicha returns one ficha. Open to any authenticated user.
func (s *Service) GetFicha(ctx context.Context, id int64, actor shared.Actor) (*Ficha, error) {
	if actor.IsZero() {
		return nil, fmt.Errorf("fichas: %w", shared.ErrPermissionDenied)
	}
	return s.repo.GetFicha(ctx, id)
}

// ListFichas returns all fichas. Open to any authenticated user.
func (s *Service) ListFichas(ctx context.Context, actor shared.Actor) ([]Ficha, error) {
	if actor.IsZero() {
		return nil, fmt.Errorf("fichas: %w", shared.ErrPermissionDenied)
	}
	return s.repo.ListFichas(ctx)
}

// ListMine returns the fichas assigned to the acting instructor. The query is
// pre-scoped to the actor, so only the role gate applies.
func (s *Service) ListMine(ctx context.Context, actor shared.Actor) ([]Ficha, error) {
	if err := s.policy.RequireInstructor(actor); err != nil {
		return nil, err
	}
	return s.repo.ListByInstructor(ctx, actor.ID)
}

// Membership exposes the snapshot loader to collaborating services.
func (s *Service) Membership(ctx context.Context, fichaID int64) (authz.Membership, error) {
	return s.repo.Membership(ctx, fichaID)
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}
