package users

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// User is an operator account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsSuperuser  bool      `json:"is_superuser"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetID returns the user id.
func (u *User) GetID() int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// IsSuperUser reports whether the account bypasses warehouse scoping.
func (u *User) IsSuperUser() bool {
	return u != nil && u.IsActive && u.IsSuperuser
}

// ErrNotFound is returned when no user matches.
var ErrNotFound = fmt.Errorf("user %w", shared.ErrNotFound)
