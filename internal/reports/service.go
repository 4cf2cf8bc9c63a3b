package reports

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fichaflow/fichaflow/internal/attendance"
	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// FichaDirectory resolves membership snapshots for the matrix gate.
type FichaDirectory interface {
	Membership(ctx context.Context, fichaID int64) (authz.Membership, error)
}

// Config tunes the aggregator.
type Config struct {
	// CountUnsetAsAbsent folds records nobody marked into the absent
	// bucket of the histogram. Off by default: an unmarked record is
	// no evidence either way.
	CountUnsetAsAbsent bool
	// TopN caps ranking length. Zero means 5.
	TopN int
}

func (c Config) topN() int {
	if c.TopN <= 0 {
		return 5
	}
	return c.TopN
}

type Service struct {
	repo   Repository
	fichas FichaDirectory
	policy *authz.Policy
	cfg    Config
}

func NewService(repo Repository, fichas FichaDirectory, policy *authz.Policy, cfg Config) *Service {
	return &Service{repo: repo, fichas: fichas, policy: policy, cfg: cfg}
}

// Global builds the admin statistics report. Totals ignore the filter;
// the histogram honors it.
func (s *Service) Global(ctx context.Context, actor shared.Actor, filter Filter) (GlobalReport, error) {
	if err := s.policy.RequireAdmin(actor); err != nil {
		return GlobalReport{}, err
	}

	totals, err := s.repo.Totals(ctx)
	if err != nil {
		return GlobalReport{}, fmt.Errorf("load totals: %w", err)
	}
	facts, err := s.repo.AttendanceFacts(ctx)
	if err != nil {
		return GlobalReport{}, fmt.Errorf("load attendance facts: %w", err)
	}

	report := GlobalReport{Totals: totals}
	for _, fact := range facts {
		if !filter.Matches(fact) {
			continue
		}
		switch fact.Status {
		case attendance.StatusPresent:
			report.AttendanceByStatus.Present++
		case attendance.StatusAbsent:
			report.AttendanceByStatus.Absent++
		case attendance.StatusLate:
			report.AttendanceByStatus.Late++
		case attendance.StatusExcused:
			report.AttendanceByStatus.Excused++
		case attendance.StatusUnset:
			if s.cfg.CountUnsetAsAbsent {
				report.AttendanceByStatus.Absent++
			}
		}
	}
	return report, nil
}

// TopFichasByAbsences ranks fichas by absent records under the filter.
// Ties break on the lower ficha id so the ranking is deterministic.
func (s *Service) TopFichasByAbsences(ctx context.Context, actor shared.Actor, filter Filter) ([]RankingEntry, error) {
	if err := s.policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	facts, err := s.repo.AttendanceFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attendance facts: %w", err)
	}

	absences := make(map[int64]int64)
	for _, fact := range facts {
		if !filter.Matches(fact) {
			continue
		}
		if fact.Status == attendance.StatusAbsent {
			absences[fact.FichaID]++
		}
		if fact.Status == attendance.StatusUnset && s.cfg.CountUnsetAsAbsent {
			absences[fact.FichaID]++
		}
	}

	entries := make([]RankingEntry, 0, len(absences))
	for id, count := range absences {
		entries = append(entries, RankingEntry{ID: id, Count: count})
	}
	return s.rank(entries), nil
}

// TopInstructorsBySessions ranks instructors by sessions created.
func (s *Service) TopInstructorsBySessions(ctx context.Context, actor shared.Actor) ([]RankingEntry, error) {
	if err := s.policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	counts, err := s.repo.InstructorSessionCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instructor session counts: %w", err)
	}

	entries := make([]RankingEntry, 0, len(counts))
	for _, c := range counts {
		entries = append(entries, RankingEntry{ID: c.ID, Count: c.Count})
	}
	return s.rank(entries), nil
}

func (s *Service) rank(entries []RankingEntry) []RankingEntry {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].ID < entries[j].ID
	})
	if n := s.cfg.topN(); len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// StudentAttendancePercentage computes attended records over total records
// for one student, as a percentage rounded to two decimals. A student with
// no records scores zero rather than erroring.
func (s *Service) StudentAttendancePercentage(ctx context.Context, studentID int64) (float64, error) {
	statuses, err := s.repo.StudentStatuses(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("load student statuses: %w", err)
	}
	if len(statuses) == 0 {
		return 0, nil
	}

	var attended int64
	for _, status := range statuses {
		if status.Attended() {
			attended++
		}
	}
	pct := float64(attended) / float64(len(statuses)) * 100
	return math.Round(pct*100) / 100, nil
}

// AttendancePercentageFor exposes the percentage with access rules: staff
// may query any student, a student only themselves.
func (s *Service) AttendancePercentageFor(ctx context.Context, actor shared.Actor, studentID int64) (float64, error) {
	if actor.IsZero() {
		return 0, shared.ErrPermissionDenied
	}
	if actor.Role == shared.RoleStudent && actor.ID != studentID {
		return 0, shared.ErrPermissionDenied
	}
	return s.StudentAttendancePercentage(ctx, studentID)
}

// Matrix assembles the per-ficha report grid. Admins and the ficha's own
// instructors may read it.
func (s *Service) Matrix(ctx context.Context, actor shared.Actor, fichaID int64) (FichaMatrix, error) {
	membership, err := s.fichas.Membership(ctx, fichaID)
	if err != nil {
		return FichaMatrix{}, err
	}
	if err := s.policy.RequireInstructorOfFicha(actor, authz.FichaResource{Membership: membership}); err != nil {
		return FichaMatrix{}, err
	}

	sessions, err := s.repo.FichaSessions(ctx, fichaID)
	if err != nil {
		return FichaMatrix{}, fmt.Errorf("load ficha sessions: %w", err)
	}
	studentIDs, err := s.repo.FichaStudentIDs(ctx, fichaID)
	if err != nil {
		return FichaMatrix{}, fmt.Errorf("load ficha students: %w", err)
	}
	facts, err := s.repo.AttendanceFacts(ctx)
	if err != nil {
		return FichaMatrix{}, fmt.Errorf("load attendance facts: %w", err)
	}

	matrix := FichaMatrix{
		FichaID:    fichaID,
		Sessions:   sessions,
		StudentIDs: studentIDs,
		Statuses:   make(map[MatrixKey]attendance.Status),
	}
	for _, fact := range facts {
		if fact.FichaID != fichaID || fact.Status == attendance.StatusUnset {
			continue
		}
		matrix.Statuses[MatrixKey{StudentID: fact.StudentID, SessionID: fact.SessionID}] = fact.Status
	}
	return matrix, nil
}

// InstructorDashboard summarizes the actor's assigned fichas as of now.
func (s *Service) InstructorDashboard(ctx context.Context, actor shared.Actor, now time.Time) (InstructorDashboard, error) {
	if err := s.policy.RequireInstructor(actor); err != nil {
		return InstructorDashboard{}, err
	}

	fichaIDs, err := s.repo.InstructorFichaIDs(ctx, actor.ID)
	if err != nil {
		return InstructorDashboard{}, fmt.Errorf("load instructor fichas: %w", err)
	}
	dash := InstructorDashboard{TotalAssignedFichas: int64(len(fichaIDs))}
	if len(fichaIDs) == 0 {
		return dash, nil
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if dash.TodaySessions, err = s.repo.CountSessionsOn(ctx, fichaIDs, today); err != nil {
		return InstructorDashboard{}, fmt.Errorf("count today sessions: %w", err)
	}
	if dash.PendingExcuses, err = s.repo.CountPendingExcusesIn(ctx, fichaIDs); err != nil {
		return InstructorDashboard{}, fmt.Errorf("count pending excuses: %w", err)
	}
	if dash.TotalStudentsInFichas, err = s.repo.CountStudentsIn(ctx, fichaIDs); err != nil {
		return InstructorDashboard{}, fmt.Errorf("count students: %w", err)
	}
	if dash.TotalAttendancesRecorded, err = s.repo.CountRecordedIn(ctx, fichaIDs); err != nil {
		return InstructorDashboard{}, fmt.Errorf("count recorded attendances: %w", err)
	}
	return dash, nil
}

// StudentDashboard summarizes the actor's own standing as of now.
func (s *Service) StudentDashboard(ctx context.Context, actor shared.Actor, now time.Time) (StudentDashboard, error) {
	if err := s.policy.RequireStudent(actor); err != nil {
		return StudentDashboard{}, err
	}

	pct, err := s.StudentAttendancePercentage(ctx, actor.ID)
	if err != nil {
		return StudentDashboard{}, err
	}
	statuses, err := s.repo.StudentStatuses(ctx, actor.ID)
	if err != nil {
		return StudentDashboard{}, fmt.Errorf("load student statuses: %w", err)
	}

	dash := StudentDashboard{AttendancePercentage: pct}
	for _, status := range statuses {
		switch status {
		case attendance.StatusLate:
			dash.LateCount++
		case attendance.StatusAbsent:
			dash.AbsentCount++
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if dash.UpcomingSessions, err = s.repo.CountUpcomingSessions(ctx, actor.ID, today); err != nil {
		return StudentDashboard{}, fmt.Errorf("count upcoming sessions: %w", err)
	}
	if dash.PendingExcuses, err = s.repo.CountPendingExcusesBy(ctx, actor.ID); err != nil {
		return StudentDashboard{}, fmt.Errorf("count pending excuses: %w", err)
	}
	return dash, nil
}
