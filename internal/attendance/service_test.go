package attendance

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	sessions      map[int64]*Session
	records       map[int64]*Record
	nextSessionID int64
	nextRecordID  int64

	// instructor -> ficha ids, mirrors ficha_instructors for scoped queries
	instructorFichas map[int64][]int64
	failRecordAfter  int // fail record inserts past this count when > 0
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		sessions:         make(map[int64]*Session),
		records:          make(map[int64]*Record),
		nextSessionID:    1,
		nextRecordID:     1,
		instructorFichas: make(map[int64][]int64),
	}
}

var errInjected = errors.New("injected storage failure")

// mockTx stages writes and applies them only when the callback succeeds,
// emulating transaction rollback.
type mockTx struct {
	mock        *mockRepository
	sessions    []*Session
	records     []*Record
	recordCount int
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &mockTx{mock: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, s := range tx.sessions {
		m.sessions[s.ID] = s
	}
	for _, r := range tx.records {
		m.records[r.ID] = r
	}
	return nil
}

func (t *mockTx) CreateSession(ctx context.Context, session Session) (int64, error) {
	session.ID = t.mock.nextSessionID
	t.mock.nextSessionID++
	session.CreatedAt = time.Now()
	t.sessions = append(t.sessions, &session)
	return session.ID, nil
}

func (t *mockTx) InsertRecord(ctx context.Context, sessionID, studentID int64) error {
	t.recordCount++
	if t.mock.failRecordAfter > 0 && t.recordCount > t.mock.failRecordAfter {
		return errInjected
	}
	for _, r := range t.records {
		if r.SessionID == sessionID && r.StudentID == studentID {
			return errors.New("duplicate record")
		}
	}
	rec := &Record{
		ID:        t.mock.nextRecordID,
		SessionID: sessionID,
		StudentID: studentID,
		Status:    StatusUnset,
	}
	t.mock.nextRecordID++
	t.records = append(t.records, rec)
	return nil
}

func (m *mockRepository) GetSession(ctx context.Context, id int64) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *mockRepository) ToggleSessionActive(ctx context.Context, id int64) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	s.IsActive = !s.IsActive
	clone := *s
	return &clone, nil
}

func (m *mockRepository) SessionsByInstructorOn(ctx context.Context, instructorID int64, day time.Time) ([]Session, error) {
	fichas := m.instructorFichas[instructorID]
	var out []Session
	for _, s := range m.sessions {
		if !s.Date.Equal(day) {
			continue
		}
		for _, fid := range fichas {
			if s.FichaID == fid {
				out = append(out, *s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *mockRepository) GetRecord(ctx context.Context, id int64) (*Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (m *mockRepository) GetRecordBySessionStudent(ctx context.Context, sessionID, studentID int64) (*Record, error) {
	for _, r := range m.records {
		if r.SessionID == sessionID && r.StudentID == studentID {
			clone := *r
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) UpdateRecordStatus(ctx context.Context, id int64, status Status, updatedBy int64) (*Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	r.Status = status
	r.UpdatedBy = updatedBy
	r.UpdatedAt = time.Now()
	clone := *r
	return &clone, nil
}

func (m *mockRepository) ListRecordsBySession(ctx context.Context, sessionID int64) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *mockRepository) ListRecordsByStudent(ctx context.Context, studentID int64, statusFilter *Status) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.StudentID != studentID {
			continue
		}
		if statusFilter != nil && r.Status != *statusFilter {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) ListRecordsByInstructor(ctx context.Context, instructorID int64) ([]Record, error) {
	fichas := m.instructorFichas[instructorID]
	var out []Record
	for _, r := range m.records {
		session, ok := m.sessions[r.SessionID]
		if !ok {
			continue
		}
		for _, fid := range fichas {
			if session.FichaID == fid {
				out = append(out, *r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) ListAllRecords(ctx context.Context) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// mockDirectory serves fixed membership snapshots.
type mockDirectory struct {
	memberships map[int64]authz.Membership
}

func (d mockDirectory) Membership(ctx context.Context, fichaID int64) (authz.Membership, error) {
	m, ok := d.memberships[fichaID]
	if !ok {
		return authz.Membership{}, shared.ErrNotFound
	}
	return m, nil
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

// ============================================================================
// FIXTURES
// ============================================================================

const fichaF = int64(1)

var (
	instructorI = shared.Actor{ID: 10, Role: shared.RoleInstructor}
	instructorJ = shared.Actor{ID: 11, Role: shared.RoleInstructor}
	adminA      = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	studentA    = shared.Actor{ID: 20, Role: shared.RoleStudent}
	studentB    = shared.Actor{ID: 21, Role: shared.RoleStudent}
	studentX    = shared.Actor{ID: 99, Role: shared.RoleStudent}
)

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	repo.instructorFichas[instructorI.ID] = []int64{fichaF}
	dir := mockDirectory{memberships: map[int64]authz.Membership{
		fichaF: {
			FichaID:       fichaF,
			InstructorIDs: []int64{instructorI.ID},
			StudentIDs:    []int64{studentA.ID, studentB.ID},
		},
	}}
	return NewService(repo, dir, authz.NewPolicy()), repo
}

func createSessionRequest() CreateSessionRequest {
	return CreateSessionRequest{FichaID: fichaF, Date: "2024-01-10", StartTime: "08:00"}
}

// ============================================================================
// SESSION LIFECYCLE
// ============================================================================

func TestCreateSessionFansOutOneRecordPerStudent(t *testing.T) {
	svc, repo := newTestService()

	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)
	require.NotZero(t, session.ID)
	assert.False(t, session.IsActive)

	records, err := svc.ListForSession(context.Background(), session.ID, instructorI)
	require.NoError(t, err)
	require.Len(t, records, 2)

	studentIDs := []int64{records[0].StudentID, records[1].StudentID}
	assert.Equal(t, []int64{studentA.ID, studentB.ID}, studentIDs)
	for _, rec := range records {
		assert.Equal(t, StatusUnset, rec.Status)
		assert.Equal(t, session.ID, rec.SessionID)
	}
	assert.Len(t, repo.records, 2)
}

func TestCreateSessionByAdmin(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateSession(context.Background(), createSessionRequest(), adminA)
	require.NoError(t, err)
}

func TestCreateSessionDeniedForUnassignedInstructor(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorJ)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	// Zero state change: no session, no records.
	assert.Empty(t, repo.sessions)
	assert.Empty(t, repo.records)
}

func TestCreateSessionDeniedForStudent(t *testing.T) {
	svc, repo := newTestService()
	_, err := svc.CreateSession(context.Background(), createSessionRequest(), studentA)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	assert.Empty(t, repo.sessions)
}

func TestCreateSessionValidatesDateAndTime(t *testing.T) {
	svc, _ := newTestService()

	req := createSessionRequest()
	req.Date = "10/01/2024"
	_, err := svc.CreateSession(context.Background(), req, instructorI)
	assert.ErrorIs(t, err, shared.ErrValidation)

	req = createSessionRequest()
	req.StartTime = "8 o'clock"
	_, err = svc.CreateSession(context.Background(), req, instructorI)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateSessionUnknownFicha(t *testing.T) {
	svc, _ := newTestService()
	req := createSessionRequest()
	req.FichaID = 404
	_, err := svc.CreateSession(context.Background(), req, instructorI)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateSessionAbortsWholeTxOnPartialFailure(t *testing.T) {
	svc, repo := newTestService()
	repo.failRecordAfter = 1 // second record insert fails

	_, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.ErrorIs(t, err, shared.ErrInternal)

	// Neither the session nor the first record may survive.
	assert.Empty(t, repo.sessions)
	assert.Empty(t, repo.records)
}

func TestToggleActivationFlipsEachTime(t *testing.T) {
	svc, _ := newTestService()
	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)

	toggled, err := svc.ToggleActivation(context.Background(), session.ID, instructorI)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)

	toggled, err = svc.ToggleActivation(context.Background(), session.ID, instructorI)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	// Records untouched by toggling.
	records, err := svc.ListForSession(context.Background(), session.ID, instructorI)
	require.NoError(t, err)
	for _, rec := range records {
		assert.Equal(t, StatusUnset, rec.Status)
	}
}

func TestToggleActivationDeniedForOutsiders(t *testing.T) {
	svc, _ := newTestService()
	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)

	_, err = svc.ToggleActivation(context.Background(), session.ID, instructorJ)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = svc.ToggleActivation(context.Background(), session.ID, studentA)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

// ============================================================================
// RECORD STORE
// ============================================================================

func TestUpdateRecordStatusByAssignedInstructor(t *testing.T) {
	svc, _ := newTestService()
	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)

	records, err := svc.ListForSession(context.Background(), session.ID, instructorI)
	require.NoError(t, err)

	updated, err := svc.UpdateRecordStatus(context.Background(), records[0].ID, StatusPresent, instructorI)
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, updated.Status)
	assert.Equal(t, instructorI.ID, updated.UpdatedBy)
}

func TestUpdateRecordStatusLastWriteWins(t *testing.T) {
	svc, _ := newTestService()
	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)
	records, err := svc.ListForSession(context.Background(), session.ID, instructorI)
	require.NoError(t, err)

	_, err = svc.UpdateRecordStatus(context.Background(), records[0].ID, StatusPresent, instructorI)
	require.NoError(t, err)
	updated, err := svc.UpdateRecordStatus(context.Background(), records[0].ID, StatusLate, adminA)
	require.NoError(t, err)
	assert.Equal(t, StatusLate, updated.Status)
	assert.Equal(t, adminA.ID, updated.UpdatedBy)
}

func TestUpdateRecordStatusDeniedForOutsiders(t *testing.T) {
	svc, repo := newTestService()
	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)
	records, err := svc.ListForSession(context.Background(), session.ID, instructorI)
	require.NoError(t, err)

	_, err = svc.UpdateRecordStatus(context.Background(), records[0].ID, StatusPresent, instructorJ)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = svc.UpdateRecordStatus(context.Background(), records[0].ID, StatusPresent, studentA)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)

	// Denials leave the record untouched.
	assert.Equal(t, StatusUnset, repo.records[records[0].ID].Status)
}

func TestUpdateRecordStatusRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService()
	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)
	records, err := svc.ListForSession(context.Background(), session.ID, instructorI)
	require.NoError(t, err)

	_, err = svc.UpdateRecordStatus(context.Background(), records[0].ID, Status("attending"), instructorI)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRecordStatusNotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.UpdateRecordStatus(context.Background(), 404, StatusPresent, adminA)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCorrectRecordBySessionStudent(t *testing.T) {
	svc, _ := newTestService()
	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)

	updated, err := svc.CorrectRecord(context.Background(), session.ID, studentB.ID, StatusExcused, instructorI)
	require.NoError(t, err)
	assert.Equal(t, StatusExcused, updated.Status)
	assert.Equal(t, studentB.ID, updated.StudentID)
}

// ============================================================================
// SCOPED READS
// ============================================================================

func seedSessionWithStatuses(t *testing.T, svc *Service) *Session {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)
	_, err = svc.CorrectRecord(context.Background(), session.ID, studentA.ID, StatusPresent, instructorI)
	require.NoError(t, err)
	_, err = svc.CorrectRecord(context.Background(), session.ID, studentB.ID, StatusAbsent, instructorI)
	require.NoError(t, err)
	return session
}

func TestListScopedStudentSeesOnlyOwnRecords(t *testing.T) {
	svc, _ := newTestService()
	seedSessionWithStatuses(t, svc)

	records, err := svc.ListScoped(context.Background(), studentA)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, studentA.ID, records[0].StudentID)
}

func TestListScopedInstructorSeesOwnFichas(t *testing.T) {
	svc, _ := newTestService()
	seedSessionWithStatuses(t, svc)

	records, err := svc.ListScoped(context.Background(), instructorI)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// Instructor J teaches no ficha here: scoped to nothing, not denied.
	records, err = svc.ListScoped(context.Background(), instructorJ)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListScopedAdminSeesAll(t *testing.T) {
	svc, _ := newTestService()
	seedSessionWithStatuses(t, svc)

	records, err := svc.ListScoped(context.Background(), adminA)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestScopingVersusDenialForOutsideStudent(t *testing.T) {
	svc, _ := newTestService()
	session := seedSessionWithStatuses(t, svc)

	// Student X is not in ficha F. "My absences" is pre-scoped: empty result,
	// no error.
	absences, err := svc.MyAbsences(context.Background(), studentX)
	require.NoError(t, err)
	assert.Empty(t, absences)

	// Direct session detail is an explicit object-level check: denied.
	_, err = svc.GetSession(context.Background(), session.ID, studentX)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestGetSessionOpenToFichaMembers(t *testing.T) {
	svc, _ := newTestService()
	session := seedSessionWithStatuses(t, svc)

	for _, actor := range []shared.Actor{adminA, instructorI, studentA} {
		_, err := svc.GetSession(context.Background(), session.ID, actor)
		assert.NoError(t, err)
	}
	_, err := svc.GetSession(context.Background(), session.ID, instructorJ)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestMyAbsencesReturnsOnlyAbsentRecords(t *testing.T) {
	svc, _ := newTestService()
	seedSessionWithStatuses(t, svc)

	absences, err := svc.MyAbsences(context.Background(), studentB)
	require.NoError(t, err)
	require.Len(t, absences, 1)
	assert.Equal(t, StatusAbsent, absences[0].Status)

	absences, err = svc.MyAbsences(context.Background(), studentA)
	require.NoError(t, err)
	assert.Empty(t, absences)
}

func TestMyRecordsHonorsStatusFilter(t *testing.T) {
	svc, _ := newTestService()
	seedSessionWithStatuses(t, svc)

	records, err := svc.MyRecords(context.Background(), studentA, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	present := StatusPresent
	records, err = svc.MyRecords(context.Background(), studentA, &present)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusPresent, records[0].Status)

	absent := StatusAbsent
	records, err = svc.MyRecords(context.Background(), studentA, &absent)
	require.NoError(t, err)
	assert.Empty(t, records)

	// Non-students get the scoped empty result.
	records, err = svc.MyRecords(context.Background(), instructorI, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTodaySessionsRequiresInstructorRole(t *testing.T) {
	svc, _ := newTestService()
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.TodaySessions(context.Background(), studentA, day)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = svc.TodaySessions(context.Background(), adminA, day)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestTodaySessionsScopedToActor(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	sessions, err := svc.TodaySessions(context.Background(), instructorI, day)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	sessions, err = svc.TodaySessions(context.Background(), instructorJ, day)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestWritesBumpReportInvalidator(t *testing.T) {
	svc, _ := newTestService()
	inv := &countingInvalidator{}
	svc.SetReportInvalidator(inv)

	session, err := svc.CreateSession(context.Background(), createSessionRequest(), instructorI)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.bumps)

	_, err = svc.CorrectRecord(context.Background(), session.ID, studentA.ID, StatusPresent, instructorI)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.bumps)
}
