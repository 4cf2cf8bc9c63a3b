package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fichaflow/fichaflow/internal/attendance"
)

// Repository loads aggregate inputs. The service computes everything else
// in memory so the math stays testable without a database.
type Repository interface {
	Totals(ctx context.Context) (Totals, error)
	AttendanceFacts(ctx context.Context) ([]Fact, error)
	InstructorSessionCounts(ctx context.Context) ([]IDCount, error)
	StudentStatuses(ctx context.Context, studentID int64) ([]attendance.Status, error)

	FichaSessions(ctx context.Context, fichaID int64) ([]attendance.Session, error)
	FichaStudentIDs(ctx context.Context, fichaID int64) ([]int64, error)

	InstructorFichaIDs(ctx context.Context, instructorID int64) ([]int64, error)
	CountSessionsOn(ctx context.Context, fichaIDs []int64, day time.Time) (int64, error)
	CountPendingExcusesIn(ctx context.Context, fichaIDs []int64) (int64, error)
	CountStudentsIn(ctx context.Context, fichaIDs []int64) (int64, error)
	CountRecordedIn(ctx context.Context, fichaIDs []int64) (int64, error)

	CountUpcomingSessions(ctx context.Context, studentID int64, from time.Time) (int64, error)
	CountPendingExcusesBy(ctx context.Context, studentID int64) (int64, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Totals(ctx context.Context) (Totals, error) {
	const q = `
SELECT
  (SELECT COUNT(*) FROM fichas),
  (SELECT COUNT(*) FROM users WHERE role = 'instructor'),
  (SELECT COUNT(*) FROM users WHERE role = 'student'),
  (SELECT COUNT(*) FROM attendance_sessions),
  (SELECT COUNT(*) FROM excuses),
  (SELECT COUNT(*) FROM excuses WHERE status = 'pending')`

	var t Totals
	err := r.pool.QueryRow(ctx, q).Scan(
		&t.Fichas, &t.Instructors, &t.Students,
		&t.Sessions, &t.Excuses, &t.PendingExcuses,
	)
	if err != nil {
		return Totals{}, fmt.Errorf("query totals: %w", err)
	}
	return t, nil
}

func (r *PGRepository) AttendanceFacts(ctx context.Context) ([]Fact, error) {
	const q = `
SELECT ar.id, s.ficha_id, ar.session_id, ar.student_id, ar.status, s.session_date
FROM attendance_records ar
JOIN attendance_sessions s ON s.id = ar.session_id
ORDER BY ar.id`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query attendance facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.RecordID, &f.FichaID, &f.SessionID, &f.StudentID, &f.Status, &f.Date); err != nil {
			return nil, fmt.Errorf("scan attendance fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (r *PGRepository) InstructorSessionCounts(ctx context.Context) ([]IDCount, error) {
	const q = `
SELECT created_by, COUNT(*)
FROM attendance_sessions
GROUP BY created_by`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query instructor session counts: %w", err)
	}
	defer rows.Close()

	var counts []IDCount
	for rows.Next() {
		var c IDCount
		if err := rows.Scan(&c.ID, &c.Count); err != nil {
			return nil, fmt.Errorf("scan instructor session count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *PGRepository) StudentStatuses(ctx context.Context, studentID int64) ([]attendance.Status, error) {
	const q = `SELECT status FROM attendance_records WHERE student_id = $1`

	rows, err := r.pool.Query(ctx, q, studentID)
	if err != nil {
		return nil, fmt.Errorf("query student statuses: %w", err)
	}
	defer rows.Close()

	var statuses []attendance.Status
	for rows.Next() {
		var s attendance.Status
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan student status: %w", err)
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

func (r *PGRepository) FichaSessions(ctx context.Context, fichaID int64) ([]attendance.Session, error) {
	const q = `
SELECT id, ficha_id, session_date, start_time, is_active, created_by, created_at
FROM attendance_sessions
WHERE ficha_id = $1
ORDER BY session_date, start_time, id`

	rows, err := r.pool.Query(ctx, q, fichaID)
	if err != nil {
		return nil, fmt.Errorf("query ficha sessions: %w", err)
	}
	defer rows.Close()

	var sessions []attendance.Session
	for rows.Next() {
		var s attendance.Session
		if err := rows.Scan(&s.ID, &s.FichaID, &s.Date, &s.StartTime, &s.IsActive, &s.CreatedBy, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ficha session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *PGRepository) FichaStudentIDs(ctx context.Context, fichaID int64) ([]int64, error) {
	const q = `SELECT user_id FROM ficha_students WHERE ficha_id = $1 ORDER BY user_id`
	return r.queryIDs(ctx, q, fichaID)
}

func (r *PGRepository) InstructorFichaIDs(ctx context.Context, instructorID int64) ([]int64, error) {
	const q = `SELECT ficha_id FROM ficha_instructors WHERE user_id = $1 ORDER BY ficha_id`
	return r.queryIDs(ctx, q, instructorID)
}

func (r *PGRepository) CountSessionsOn(ctx context.Context, fichaIDs []int64, day time.Time) (int64, error) {
	const q = `
SELECT COUNT(*) FROM attendance_sessions
WHERE ficha_id = ANY($1) AND session_date = $2`
	return r.queryCount(ctx, q, fichaIDs, day)
}

func (r *PGRepository) CountPendingExcusesIn(ctx context.Context, fichaIDs []int64) (int64, error) {
	const q = `
SELECT COUNT(*) FROM excuses e
JOIN attendance_sessions s ON s.id = e.session_id
WHERE e.status = 'pending' AND s.ficha_id = ANY($1)`
	return r.queryCount(ctx, q, fichaIDs)
}

func (r *PGRepository) CountStudentsIn(ctx context.Context, fichaIDs []int64) (int64, error) {
	const q = `
SELECT COUNT(DISTINCT user_id) FROM ficha_students WHERE ficha_id = ANY($1)`
	return r.queryCount(ctx, q, fichaIDs)
}

func (r *PGRepository) CountRecordedIn(ctx context.Context, fichaIDs []int64) (int64, error) {
	const q = `
SELECT COUNT(*) FROM attendance_records ar
JOIN attendance_sessions s ON s.id = ar.session_id
WHERE s.ficha_id = ANY($1) AND ar.status <> 'unset'`
	return r.queryCount(ctx, q, fichaIDs)
}

func (r *PGRepository) CountUpcomingSessions(ctx context.Context, studentID int64, from time.Time) (int64, error) {
	const q = `
SELECT COUNT(*) FROM attendance_sessions s
JOIN ficha_students fs ON fs.ficha_id = s.ficha_id
WHERE fs.user_id = $1 AND s.session_date >= $2`
	return r.queryCount(ctx, q, studentID, from)
}

func (r *PGRepository) CountPendingExcusesBy(ctx context.Context, studentID int64) (int64, error) {
	const q = `SELECT COUNT(*) FROM excuses WHERE student_id = $1 AND status = 'pending'`
	return r.queryCount(ctx, q, studentID)
}

func (r *PGRepository) queryIDs(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PGRepository) queryCount(ctx context.Context, q string, args ...any) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	return n, nil
}
