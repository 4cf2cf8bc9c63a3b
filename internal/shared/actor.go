package shared

// Role is the fixed set of account roles. A role never changes within the
// lifetime of an authenticated session.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// Valid reports whether the role is one of the three known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleInstructor, RoleStudent:
		return true
	}
	return false
}

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	ID   int64
	Role Role
}

// IsZero reports whether no authenticated actor is present.
func (a Actor) IsZero() bool {
	return a.ID == 0
}
