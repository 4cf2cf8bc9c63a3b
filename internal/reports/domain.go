package reports

import (
	"time"

	"github.com/fichaflow/fichaflow/internal/attendance"
)

// Totals are the unfiltered global counters.
type Totals struct {
	Fichas         int64 `json:"total_fichas"`
	Instructors    int64 `json:"total_instructors"`
	Students       int64 `json:"total_students"`
	Sessions       int64 `json:"total_sessions"`
	Excuses        int64 `json:"total_excuses"`
	PendingExcuses int64 `json:"pending_excuses_count"`
}

// StatusHistogram buckets the filtered attendance set by status. Unset
// records are excluded unless the service is configured to fold them into
// the absent bucket.
type StatusHistogram struct {
	Present int64 `json:"present"`
	Absent  int64 `json:"absent"`
	Late    int64 `json:"late"`
	Excused int64 `json:"excused"`
}

// GlobalReport is the admin statistics document.
type GlobalReport struct {
	Totals
	AttendanceByStatus StatusHistogram `json:"attendance_by_status"`
}

// Fact is one attendance record joined with its session context, the unit
// the aggregator computes over.
type Fact struct {
	RecordID  int64
	FichaID   int64
	SessionID int64
	StudentID int64
	Status    attendance.Status
	Date      time.Time
}

// RankingEntry is one row of a top-N ranking.
type RankingEntry struct {
	ID    int64 `json:"id"`
	Count int64 `json:"count"`
}

// IDCount is a raw aggregate row from the repository.
type IDCount struct {
	ID    int64
	Count int64
}

// MatrixKey addresses one cell of a ficha report matrix.
type MatrixKey struct {
	StudentID int64
	SessionID int64
}

// FichaMatrix is the per-ficha report: every session, every student, and a
// sparse status map. A missing cell means "no record", not "absent".
type FichaMatrix struct {
	FichaID    int64
	Sessions   []attendance.Session
	StudentIDs []int64
	Statuses   map[MatrixKey]attendance.Status
}

// InstructorDashboard summarizes an instructor's day.
type InstructorDashboard struct {
	TotalAssignedFichas      int64 `json:"total_assigned_fichas"`
	TodaySessions            int64 `json:"today_sessions"`
	PendingExcuses           int64 `json:"pending_excuses"`
	TotalStudentsInFichas    int64 `json:"total_students_in_assigned_fichas"`
	TotalAttendancesRecorded int64 `json:"total_attendances_recorded"`
}

// ExportPayload bundles everything the PDF export renders.
type ExportPayload struct {
	GeneratedAt    time.Time
	Global         GlobalReport
	TopFichas      []RankingEntry
	TopInstructors []RankingEntry
}

// StudentDashboard summarizes a student's standing.
type StudentDashboard struct {
	AttendancePercentage float64 `json:"attendance_percentage"`
	UpcomingSessions     int64   `json:"upcoming_sessions"`
	PendingExcuses       int64   `json:"pending_excuses"`
	LateCount            int64   `json:"late_count"`
	AbsentCount          int64   `json:"absent_count"`
}
