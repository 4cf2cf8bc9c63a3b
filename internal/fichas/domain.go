package fichas

import (
	"time"

	"github.com/fichaflow/fichaflow/internal/authz"
)

// Ficha is a training cohort: a program run with assigned instructors and
// enrolled students. Both assignment sets are many-to-many and may change
// after attendance sessions exist; existing records are never rewritten when
// membership changes.
type Ficha struct {
	ID            int64
	Code          string
	ProgramName   string
	StartDate     time.Time
	EndDate       time.Time
	InstructorIDs []int64
	StudentIDs    []int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Membership snapshots the ficha's assignment sets for authorization.
func (f *Ficha) Membership() authz.Membership {
	if f == nil {
		return authz.Membership{}
	}
	return authz.Membership{
		FichaID:       f.ID,
		InstructorIDs: f.InstructorIDs,
		StudentIDs:    f.StudentIDs,
	}
}

// OwningFicha lets a Ficha act as its own authorization resource.
func (f *Ficha) OwningFicha() (authz.Membership, bool) {
	if f == nil {
		return authz.Membership{}, false
	}
	return f.Membership(), true
}

// CreateFichaRequest carries the fields for a new ficha.
type CreateFichaRequest struct {
	Code          string  `json:"code" validate:"required"`
	ProgramName   string  `json:"program_name" validate:"required"`
	StartDate     string  `json:"start_date" validate:"required"`
	EndDate       string  `json:"end_date" validate:"required"`
	InstructorIDs []int64 `json:"instructor_ids"`
	StudentIDs    []int64 `json:"student_ids"`
}

// UpdateFichaRequest carries optional field updates.
type UpdateFichaRequest struct {
	Code          *string  `json:"code"`
	ProgramName   *string  `json:"program_name"`
	StartDate     *string  `json:"start_date"`
	EndDate       *string  `json:"end_date"`
	InstructorIDs *[]int64 `json:"instructor_ids"`
	StudentIDs    *[]int64 `json:"student_ids"`
}
