// Package authz evaluates role and ownership based authorization decisions.
//
// The policy is a fixed set of rules over a small, closed set of resource
// shapes. Every resource that can be authorized implements FichaResolver so
// the policy never probes arbitrary attributes; an unrecognized shape is a
// denial, never an implicit grant.
package authz

import (
	"fmt"

	"github.com/fichaflow/fichaflow/internal/shared"
)

// Action classifies an operation for the route-level rule.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Mutating reports whether the action changes state.
func (a Action) Mutating() bool {
	return a != ActionRead
}

// Membership is a snapshot of a ficha's assignment sets, captured by the
// caller at decision time. The policy itself performs no I/O.
type Membership struct {
	FichaID       int64
	InstructorIDs []int64
	StudentIDs    []int64
}

// HasInstructor reports whether the user is in the ficha's instructor set.
func (m Membership) HasInstructor(userID int64) bool {
	for _, id := range m.InstructorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasStudent reports whether the user is enrolled in the ficha.
func (m Membership) HasStudent(userID int64) bool {
	for _, id := range m.StudentIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// FichaResolver is the single capability a resource needs for object-level
// authorization: naming its owning ficha. Returning false means the shape
// could not be resolved and the decision fails closed.
type FichaResolver interface {
	OwningFicha() (Membership, bool)
}

// FichaResource adapts a ficha itself.
type FichaResource struct {
	Membership Membership
}

func (r FichaResource) OwningFicha() (Membership, bool) {
	return r.Membership, true
}

// SessionResource adapts an attendance session through its ficha reference.
type SessionResource struct {
	SessionID int64
	Ficha     Membership
}

func (r SessionResource) OwningFicha() (Membership, bool) {
	return r.Ficha, true
}

// RecordResource adapts an attendance record through its session's ficha.
type RecordResource struct {
	RecordID  int64
	SessionID int64
	Ficha     Membership
}

func (r RecordResource) OwningFicha() (Membership, bool) {
	return r.Ficha, true
}

// Policy is a pure decision function over actors, actions, and resources.
type Policy struct{}

// NewPolicy constructs the policy.
func NewPolicy() *Policy {
	return &Policy{}
}

// Decide applies the route-level rule with the object-level instructor grant:
// reads are open to any authenticated user; mutations require an admin or an
// instructor of the resource's owning ficha.
func (p *Policy) Decide(actor shared.Actor, action Action, resource FichaResolver) error {
	if actor.IsZero() {
		return fmt.Errorf("authz: unauthenticated: %w", shared.ErrPermissionDenied)
	}
	if !action.Mutating() {
		return nil
	}
	if actor.Role == shared.RoleAdmin {
		return nil
	}
	return p.RequireInstructorOfFicha(actor, resource)
}

// DecideWith behaves like Decide but honors an explicit override resource
// before falling back to the object itself. Callers use it when the object
// being mutated is finer grained than what the policy should reason about,
// such as a single attendance record whose owning ficha carries the
// authorization semantics.
func (p *Policy) DecideWith(actor shared.Actor, action Action, resource, override FichaResolver) error {
	if override != nil {
		return p.Decide(actor, action, override)
	}
	return p.Decide(actor, action, resource)
}

// RequireAdmin allows only administrators.
func (p *Policy) RequireAdmin(actor shared.Actor) error {
	if actor.Role == shared.RoleAdmin {
		return nil
	}
	return fmt.Errorf("authz: admin required: %w", shared.ErrPermissionDenied)
}

// RequireInstructor is the simple role gate used for endpoints whose queries
// are already scoped to the acting user, such as "today's sessions".
func (p *Policy) RequireInstructor(actor shared.Actor) error {
	if actor.Role == shared.RoleInstructor {
		return nil
	}
	return fmt.Errorf("authz: instructor role required: %w", shared.ErrPermissionDenied)
}

// RequireStudent gates student-only dashboard queries.
func (p *Policy) RequireStudent(actor shared.Actor) error {
	if actor.Role == shared.RoleStudent {
		return nil
	}
	return fmt.Errorf("authz: student role required: %w", shared.ErrPermissionDenied)
}

// RequireStaff is the route-level gate ahead of object-level checks: admins
// and instructors pass, students and unauthenticated actors do not. Handlers
// apply it before touching the request body so the object-level re-check in
// the service stays independently testable.
func (p *Policy) RequireStaff(actor shared.Actor) error {
	if actor.Role == shared.RoleAdmin || actor.Role == shared.RoleInstructor {
		return nil
	}
	return fmt.Errorf("authz: staff role required: %w", shared.ErrPermissionDenied)
}

// RequireInstructorOfFicha allows admins and instructors assigned to the
// resource's owning ficha.
func (p *Policy) RequireInstructorOfFicha(actor shared.Actor, resource FichaResolver) error {
	if actor.Role == shared.RoleAdmin {
		return nil
	}
	membership, ok := resolve(resource)
	if !ok {
		return fmt.Errorf("authz: unresolvable resource: %w", shared.ErrPermissionDenied)
	}
	if membership.HasInstructor(actor.ID) {
		return nil
	}
	return fmt.Errorf("authz: not an instructor of ficha %d: %w", membership.FichaID, shared.ErrPermissionDenied)
}

// RequireStudentInFicha allows students enrolled in the resource's owning
// ficha. Used for student-scoped object reads and excuse submission.
func (p *Policy) RequireStudentInFicha(actor shared.Actor, resource FichaResolver) error {
	membership, ok := resolve(resource)
	if !ok {
		return fmt.Errorf("authz: unresolvable resource: %w", shared.ErrPermissionDenied)
	}
	if membership.HasStudent(actor.ID) {
		return nil
	}
	return fmt.Errorf("authz: not enrolled in ficha %d: %w", membership.FichaID, shared.ErrPermissionDenied)
}

// RequireFichaMember allows admins, assigned instructors, and enrolled
// students. Session detail reads use this: anyone tied to the ficha may look,
// everyone else is denied outright.
func (p *Policy) RequireFichaMember(actor shared.Actor, resource FichaResolver) error {
	if actor.Role == shared.RoleAdmin {
		return nil
	}
	membership, ok := resolve(resource)
	if !ok {
		return fmt.Errorf("authz: unresolvable resource: %w", shared.ErrPermissionDenied)
	}
	if membership.HasInstructor(actor.ID) || membership.HasStudent(actor.ID) {
		return nil
	}
	return fmt.Errorf("authz: not a member of ficha %d: %w", membership.FichaID, shared.ErrPermissionDenied)
}

func resolve(resource FichaResolver) (Membership, bool) {
	if resource == nil {
		return Membership{}, false
	}
	return resource.OwningFicha()
}
