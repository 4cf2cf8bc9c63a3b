package excuses

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fichaflow/fichaflow/internal/shared"
)

// Repository abstracts excuse persistence for the service.
type Repository interface {
	CreateExcuse(ctx context.Context, excuse Excuse) (int64, error)
	GetExcuse(ctx context.Context, id int64) (*Excuse, error)
	UpdateExcuseStatus(ctx context.Context, id int64, status Status, reviewedBy int64) (*Excuse, error)
	ListByStudent(ctx context.Context, studentID int64) ([]Excuse, error)
	ListPendingByInstructor(ctx context.Context, instructorID int64) ([]Excuse, error)
	SessionFicha(ctx context.Context, sessionID int64) (int64, error)
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const excuseColumns = `id, code, student_id, session_id, reason, status, COALESCE(reviewed_by, 0), created_at, updated_at`

// CreateExcuse inserts a new excuse.
func (r *PGRepository) CreateExcuse(ctx context.Context, excuse Excuse) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO excuses (code, student_id, session_id, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		excuse.Code, excuse.StudentID, excuse.SessionID, excuse.Reason, string(excuse.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("excuses: insert: %w", err)
	}
	return id, nil
}

// GetExcuse loads one excuse.
func (r *PGRepository) GetExcuse(ctx context.Context, id int64) (*Excuse, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+excuseColumns+` FROM excuses WHERE id = $1`, id)
	return scanExcuse(row)
}

// UpdateExcuseStatus records the review outcome.
func (r *PGRepository) UpdateExcuseStatus(ctx context.Context, id int64, status Status, reviewedBy int64) (*Excuse, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE excuses
		SET status = $2, reviewed_by = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+excuseColumns, id, string(status), reviewedBy)
	return scanExcuse(row)
}

// ListByStudent returns a student's excuses, newest first.
func (r *PGRepository) ListByStudent(ctx context.Context, studentID int64) ([]Excuse, error) {
	return r.queryExcuses(ctx, `
		SELECT `+excuseColumns+` FROM excuses
		WHERE student_id = $1 ORDER BY created_at DESC`, studentID)
}

// ListPendingByInstructor returns pending excuses in the instructor's fichas.
func (r *PGRepository) ListPendingByInstructor(ctx context.Context, instructorID int64) ([]Excuse, error) {
	return r.queryExcuses(ctx, `
		SELECT e.id, e.code, e.student_id, e.session_id, e.reason, e.status, COALESCE(e.reviewed_by, 0), e.created_at, e.updated_at
		FROM excuses e
		JOIN attendance_sessions s ON s.id = e.session_id
		JOIN ficha_instructors fi ON fi.ficha_id = s.ficha_id
		WHERE fi.user_id = $1 AND e.status = 'pending'
		ORDER BY e.created_at`, instructorID)
}

// SessionFicha resolves the ficha owning a session.
func (r *PGRepository) SessionFicha(ctx context.Context, sessionID int64) (int64, error) {
	var fichaID int64
	err := r.pool.QueryRow(ctx, `SELECT ficha_id FROM attendance_sessions WHERE id = $1`, sessionID).Scan(&fichaID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, fmt.Errorf("excuses: session ficha: %w", err)
	}
	return fichaID, nil
}

func (r *PGRepository) queryExcuses(ctx context.Context, query string, args ...any) ([]Excuse, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("excuses: query: %w", err)
	}
	defer rows.Close()

	var out []Excuse
	for rows.Next() {
		var e Excuse
		var status string
		if err := rows.Scan(&e.ID, &e.Code, &e.StudentID, &e.SessionID, &e.Reason, &status, &e.ReviewedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("excuses: scan: %w", err)
		}
		e.Status = Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExcuse(row pgx.Row) (*Excuse, error) {
	var e Excuse
	var status string
	err := row.Scan(&e.ID, &e.Code, &e.StudentID, &e.SessionID, &e.Reason, &status, &e.ReviewedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("excuses: scan: %w", err)
	}
	e.Status = Status(status)
	return &e, nil
}
