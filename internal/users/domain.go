package users

import (
	"time"

	"github.com/fichaflow/fichaflow/internal/shared"
)

// User represents an account that can log in: an administrator, an
// instructor, or a student (aprendiz).
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         shared.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
