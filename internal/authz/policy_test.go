package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fichaflow/fichaflow/internal/shared"
)

var testMembership = Membership{
	FichaID:       7,
	InstructorIDs: []int64{10, 11},
	StudentIDs:    []int64{20, 21, 22},
}

func admin() shared.Actor      { return shared.Actor{ID: 1, Role: shared.RoleAdmin} }
func instructor() shared.Actor { return shared.Actor{ID: 10, Role: shared.RoleInstructor} }
func outsider() shared.Actor   { return shared.Actor{ID: 99, Role: shared.RoleInstructor} }
func student() shared.Actor    { return shared.Actor{ID: 20, Role: shared.RoleStudent} }

// unresolvable is a resource shape the policy does not recognize.
type unresolvable struct{}

func (unresolvable) OwningFicha() (Membership, bool) { return Membership{}, false }

func TestDecideReadOpenToAuthenticated(t *testing.T) {
	p := NewPolicy()
	for _, actor := range []shared.Actor{admin(), instructor(), student(), outsider()} {
		assert.NoError(t, p.Decide(actor, ActionRead, FichaResource{Membership: testMembership}))
	}
}

func TestDecideDeniesUnauthenticated(t *testing.T) {
	p := NewPolicy()
	err := p.Decide(shared.Actor{}, ActionRead, FichaResource{Membership: testMembership})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestDecideMutationRequiresAdminOrAssignedInstructor(t *testing.T) {
	p := NewPolicy()
	res := SessionResource{SessionID: 1, Ficha: testMembership}

	assert.NoError(t, p.Decide(admin(), ActionUpdate, res))
	assert.NoError(t, p.Decide(instructor(), ActionUpdate, res))
	assert.ErrorIs(t, p.Decide(outsider(), ActionUpdate, res), shared.ErrPermissionDenied)
	assert.ErrorIs(t, p.Decide(student(), ActionDelete, res), shared.ErrPermissionDenied)
}

func TestDecideFailsClosedOnUnknownShape(t *testing.T) {
	p := NewPolicy()
	assert.ErrorIs(t, p.Decide(instructor(), ActionUpdate, unresolvable{}), shared.ErrPermissionDenied)
	assert.ErrorIs(t, p.Decide(instructor(), ActionUpdate, nil), shared.ErrPermissionDenied)
}

func TestDecideWithHonorsOverrideFirst(t *testing.T) {
	p := NewPolicy()

	// The record itself is unresolvable, but the override carries the owning
	// ficha: the override must win.
	override := FichaResource{Membership: testMembership}
	assert.NoError(t, p.DecideWith(instructor(), ActionUpdate, unresolvable{}, override))

	// Without an override the direct object decides.
	assert.ErrorIs(t, p.DecideWith(instructor(), ActionUpdate, unresolvable{}, nil), shared.ErrPermissionDenied)

	// An override that denies is not rescued by a permissive direct object.
	otherFicha := FichaResource{Membership: Membership{FichaID: 8, InstructorIDs: []int64{55}}}
	err := p.DecideWith(instructor(), ActionUpdate, FichaResource{Membership: testMembership}, otherFicha)
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestRequireInstructorOfFicha(t *testing.T) {
	p := NewPolicy()
	res := RecordResource{RecordID: 3, SessionID: 1, Ficha: testMembership}

	assert.NoError(t, p.RequireInstructorOfFicha(admin(), res))
	assert.NoError(t, p.RequireInstructorOfFicha(instructor(), res))
	assert.ErrorIs(t, p.RequireInstructorOfFicha(outsider(), res), shared.ErrPermissionDenied)
	assert.ErrorIs(t, p.RequireInstructorOfFicha(student(), res), shared.ErrPermissionDenied)
}

func TestRequireStudentInFicha(t *testing.T) {
	p := NewPolicy()
	res := SessionResource{SessionID: 1, Ficha: testMembership}

	assert.NoError(t, p.RequireStudentInFicha(student(), res))
	assert.ErrorIs(t, p.RequireStudentInFicha(shared.Actor{ID: 77, Role: shared.RoleStudent}, res), shared.ErrPermissionDenied)
	assert.ErrorIs(t, p.RequireStudentInFicha(student(), unresolvable{}), shared.ErrPermissionDenied)
}

func TestRequireFichaMember(t *testing.T) {
	p := NewPolicy()
	res := SessionResource{SessionID: 1, Ficha: testMembership}

	assert.NoError(t, p.RequireFichaMember(admin(), res))
	assert.NoError(t, p.RequireFichaMember(instructor(), res))
	assert.NoError(t, p.RequireFichaMember(student(), res))
	assert.ErrorIs(t, p.RequireFichaMember(outsider(), res), shared.ErrPermissionDenied)
}

func TestRoleGates(t *testing.T) {
	p := NewPolicy()

	assert.NoError(t, p.RequireAdmin(admin()))
	assert.ErrorIs(t, p.RequireAdmin(instructor()), shared.ErrPermissionDenied)

	assert.NoError(t, p.RequireInstructor(instructor()))
	assert.ErrorIs(t, p.RequireInstructor(admin()), shared.ErrPermissionDenied)
	assert.ErrorIs(t, p.RequireInstructor(student()), shared.ErrPermissionDenied)

	assert.NoError(t, p.RequireStudent(student()))
	assert.ErrorIs(t, p.RequireStudent(instructor()), shared.ErrPermissionDenied)

	assert.NoError(t, p.RequireStaff(admin()))
	assert.NoError(t, p.RequireStaff(instructor()))
	assert.ErrorIs(t, p.RequireStaff(student()), shared.ErrPermissionDenied)
	assert.ErrorIs(t, p.RequireStaff(shared.Actor{}), shared.ErrPermissionDenied)
}

func TestMembershipLookups(t *testing.T) {
	assert.True(t, testMembership.HasInstructor(11))
	assert.False(t, testMembership.HasInstructor(20))
	assert.True(t, testMembership.HasStudent(22))
	assert.False(t, testMembership.HasStudent(10))
}
