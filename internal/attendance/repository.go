package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fichaflow/fichaflow/internal/platform/db"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// Repository abstracts session and record persistence for the service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetSession(ctx context.Context, id int64) (*Session, error)
	ToggleSessionActive(ctx context.Context, id int64) (*Session, error)
	SessionsByInstructorOn(ctx context.Context, instructorID int64, day time.Time) ([]Session, error)

	GetRecord(ctx context.Context, id int64) (*Record, error)
	GetRecordBySessionStudent(ctx context.Context, sessionID, studentID int64) (*Record, error)
	UpdateRecordStatus(ctx context.Context, id int64, status Status, updatedBy int64) (*Record, error)
	ListRecordsBySession(ctx context.Context, sessionID int64) ([]Record, error)
	ListRecordsByStudent(ctx context.Context, studentID int64, statusFilter *Status) ([]Record, error)
	ListRecordsByInstructor(ctx context.Context, instructorID int64) ([]Record, error)
	ListAllRecords(ctx context.Context) ([]Record, error)
}

// TxRepository exposes the writes that participate in the session-creation
// transaction. The session insert and its record fan-out always commit or
// roll back together.
type TxRepository interface {
	CreateSession(ctx context.Context, session Session) (int64, error)
	InsertRecord(ctx context.Context, sessionID, studentID int64) error
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) CreateSession(ctx context.Context, session Session) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO attendance_sessions (ficha_id, session_date, start_time, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		session.FichaID, session.Date, session.StartTime, session.IsActive, session.CreatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertRecord(ctx context.Context, sessionID, studentID int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status)
		VALUES ($1, $2, $3)`,
		sessionID, studentID, string(StatusUnset))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("duplicate record for session %d student %d: %w", sessionID, studentID, err)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetSession loads one session.
func (r *PGRepository) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, ficha_id, session_date, start_time, is_active, created_by, created_at
		FROM attendance_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// ToggleSessionActive flips is_active atomically and returns the new state.
func (r *PGRepository) ToggleSessionActive(ctx context.Context, id int64) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE attendance_sessions
		SET is_active = NOT is_active
		WHERE id = $1
		RETURNING id, ficha_id, session_date, start_time, is_active, created_by, created_at`, id)
	return scanSession(row)
}

// SessionsByInstructorOn lists an instructor's sessions on a given day,
// ordered by start time.
func (r *PGRepository) SessionsByInstructorOn(ctx context.Context, instructorID int64, day time.Time) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.ficha_id, s.session_date, s.start_time, s.is_active, s.created_by, s.created_at
		FROM attendance_sessions s
		JOIN ficha_instructors fi ON fi.ficha_id = s.ficha_id
		WHERE fi.user_id = $1 AND s.session_date = $2
		ORDER BY s.session_date, s.start_time`, instructorID, day)
	if err != nil {
		return nil, fmt.Errorf("attendance: sessions by instructor: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// GetRecord loads one record by id.
func (r *PGRepository) GetRecord(ctx context.Context, id int64) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, student_id, status, COALESCE(updated_by, 0), updated_at
		FROM attendance_records WHERE id = $1`, id)
	return scanRecord(row)
}

// GetRecordBySessionStudent loads the record for a (session, student) pair.
func (r *PGRepository) GetRecordBySessionStudent(ctx context.Context, sessionID, studentID int64) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, student_id, status, COALESCE(updated_by, 0), updated_at
		FROM attendance_records WHERE session_id = $1 AND student_id = $2`, sessionID, studentID)
	return scanRecord(row)
}

// UpdateRecordStatus applies a last-write-wins status update.
func (r *PGRepository) UpdateRecordStatus(ctx context.Context, id int64, status Status, updatedBy int64) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE attendance_records
		SET status = $2, updated_by = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, session_id, student_id, status, COALESCE(updated_by, 0), updated_at`,
		id, string(status), updatedBy)
	return scanRecord(row)
}

// ListRecordsBySession returns a session's records ordered by student id.
func (r *PGRepository) ListRecordsBySession(ctx context.Context, sessionID int64) ([]Record, error) {
	return r.queryRecords(ctx, `
		SELECT id, session_id, student_id, status, COALESCE(updated_by, 0), updated_at
		FROM attendance_records WHERE session_id = $1
		ORDER BY student_id`, sessionID)
}

// ListRecordsByStudent returns a student's records, optionally filtered by status.
func (r *PGRepository) ListRecordsByStudent(ctx context.Context, studentID int64, statusFilter *Status) ([]Record, error) {
	if statusFilter != nil {
		return r.queryRecords(ctx, `
			SELECT id, session_id, student_id, status, COALESCE(updated_by, 0), updated_at
			FROM attendance_records WHERE student_id = $1 AND status = $2
			ORDER BY id`, studentID, string(*statusFilter))
	}
	return r.queryRecords(ctx, `
		SELECT id, session_id, student_id, status, COALESCE(updated_by, 0), updated_at
		FROM attendance_records WHERE student_id = $1
		ORDER BY id`, studentID)
}

// ListRecordsByInstructor returns records of sessions in fichas the
// instructor is assigned to.
func (r *PGRepository) ListRecordsByInstructor(ctx context.Context, instructorID int64) ([]Record, error) {
	return r.queryRecords(ctx, `
		SELECT ar.id, ar.session_id, ar.student_id, ar.status, COALESCE(ar.updated_by, 0), ar.updated_at
		FROM attendance_records ar
		JOIN attendance_sessions s ON s.id = ar.session_id
		JOIN ficha_instructors fi ON fi.ficha_id = s.ficha_id
		WHERE fi.user_id = $1
		ORDER BY ar.id`, instructorID)
}

// ListAllRecords returns every record, admin scope.
func (r *PGRepository) ListAllRecords(ctx context.Context) ([]Record, error) {
	return r.queryRecords(ctx, `
		SELECT id, session_id, student_id, status, COALESCE(updated_by, 0), updated_at
		FROM attendance_records ORDER BY id`)
}

func (r *PGRepository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("attendance: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &status, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("attendance: scan record: %w", err)
		}
		rec.Status = Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func collectSessions(rows pgx.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.FichaID, &s.Date, &s.StartTime, &s.IsActive, &s.CreatedBy, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("attendance: scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.FichaID, &s.Date, &s.StartTime, &s.IsActive, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("attendance: scan session: %w", err)
	}
	return &s, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &status, &rec.UpdatedBy, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("attendance: scan record: %w", err)
	}
	rec.Status = Status(status)
	return &rec, nil
}
