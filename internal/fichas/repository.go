package fichas

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/platform/db"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// Repository abstracts ficha persistence for the service.
type Repository interface {
	CreateFicha(ctx context.Context, ficha Ficha) (int64, error)
	UpdateFicha(ctx context.Context, ficha Ficha) error
	GetFicha(ctx context.Context, id int64) (*Ficha, error)
	ListFichas(ctx context.Context) ([]Ficha, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]Ficha, error)
	Membership(ctx context.Context, fichaID int64) (authz.Membership, error)
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateFicha inserts the ficha and its assignment sets in one transaction.
func (r *PGRepository) CreateFicha(ctx context.Context, ficha Ficha) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO fichas (code, program_name, start_date, end_date)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			ficha.Code, ficha.ProgramName, ficha.StartDate, ficha.EndDate).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert ficha: %w", err)
		}
		if err := replaceMembers(ctx, tx, "ficha_instructors", id, ficha.InstructorIDs); err != nil {
			return err
		}
		return replaceMembers(ctx, tx, "ficha_students", id, ficha.StudentIDs)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateFicha rewrites the ficha row and both assignment sets.
func (r *PGRepository) UpdateFicha(ctx context.Context, ficha Ficha) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE fichas
			SET code = $2, program_name = $3, start_date = $4, end_date = $5, updated_at = now()
			WHERE id = $1`,
			ficha.ID, ficha.Code, ficha.ProgramName, ficha.StartDate, ficha.EndDate)
		if err != nil {
			return fmt.Errorf("update ficha: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if err := replaceMembers(ctx, tx, "ficha_instructors", ficha.ID, ficha.InstructorIDs); err != nil {
			return err
		}
		return replaceMembers(ctx, tx, "ficha_students", ficha.ID, ficha.StudentIDs)
	})
}

// GetFicha loads a ficha with both assignment sets.
func (r *PGRepository) GetFicha(ctx context.Context, id int64) (*Ficha, error) {
	var f Ficha
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, program_name, start_date, end_date, created_at, updated_at
		FROM fichas WHERE id = $1`, id).
		Scan(&f.ID, &f.Code, &f.ProgramName, &f.StartDate, &f.EndDate, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("fichas: get: %w", err)
	}
	f.InstructorIDs, err = r.memberIDs(ctx, "ficha_instructors", id)
	if err != nil {
		return nil, err
	}
	f.StudentIDs, err = r.memberIDs(ctx, "ficha_students", id)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFichas returns all fichas ordered by id, with assignment sets loaded.
func (r *PGRepository) ListFichas(ctx context.Context) ([]Ficha, error) {
	return r.queryFichas(ctx, `
		SELECT id, code, program_name, start_date, end_date, created_at, updated_at
		FROM fichas ORDER BY id`)
}

// ListByInstructor returns the fichas a given instructor is assigned to.
func (r *PGRepository) ListByInstructor(ctx context.Context, instructorID int64) ([]Ficha, error) {
	return r.queryFichas(ctx, `
		SELECT f.id, f.code, f.program_name, f.start_date, f.end_date, f.created_at, f.updated_at
		FROM fichas f
		JOIN ficha_instructors fi ON fi.ficha_id = f.id
		WHERE fi.user_id = $1
		ORDER BY f.id`, instructorID)
}

// Membership loads only the assignment sets, the snapshot authorization needs.
func (r *PGRepository) Membership(ctx context.Context, fichaID int64) (authz.Membership, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fichas WHERE id = $1)`, fichaID).Scan(&exists); err != nil {
		return authz.Membership{}, fmt.Errorf("fichas: membership: %w", err)
	}
	if !exists {
		return authz.Membership{}, shared.ErrNotFound
	}
	instructors, err := r.memberIDs(ctx, "ficha_instructors", fichaID)
	if err != nil {
		return authz.Membership{}, err
	}
	students, err := r.memberIDs(ctx, "ficha_students", fichaID)
	if err != nil {
		return authz.Membership{}, err
	}
	return authz.Membership{FichaID: fichaID, InstructorIDs: instructors, StudentIDs: students}, nil
}

func (r *PGRepository) queryFichas(ctx context.Context, query string, args ...any) ([]Ficha, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fichas: query: %w", err)
	}
	defer rows.Close()

	var out []Ficha
	for rows.Next() {
		var f Ficha
		if err := rows.Scan(&f.ID, &f.Code, &f.ProgramName, &f.StartDate, &f.EndDate, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("fichas: scan: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].InstructorIDs, err = r.memberIDs(ctx, "ficha_instructors", out[i].ID); err != nil {
			return nil, err
		}
		if out[i].StudentIDs, err = r.memberIDs(ctx, "ficha_students", out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PGRepository) memberIDs(ctx context.Context, table string, fichaID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT user_id FROM %s WHERE ficha_id = $1 ORDER BY user_id`, table), fichaID)
	if err != nil {
		return nil, fmt.Errorf("fichas: members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("fichas: scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func replaceMembers(ctx context.Context, tx pgx.Tx, table string, fichaID int64, userIDs []int64) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ficha_id = $1`, table), fichaID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for _, userID := range userIDs {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (ficha_id, user_id) VALUES ($1, $2)`, table), fichaID, userID); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}
