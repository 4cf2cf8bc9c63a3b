package shared

import "errors"

var (
	// ErrPermissionDenied indicates the actor failed a role or ownership check.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound indicates a referenced ficha, session or record is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input or a broken enrollment precondition.
	ErrValidation = errors.New("validation failed")
	// ErrInternal indicates an unexpected storage or aggregation failure.
	ErrInternal = errors.New("internal error")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
