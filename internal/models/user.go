package models

import "time"

// User roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID           int64     `json:"id" db:"id" example:"1"`                 // User ID
	Username     string    `json:"username" db:"username" example:"alice"` // Unique login name
	PasswordHash string    `json:"-" db:"password"`
	Role         string    `json:"role" db:"role" example:"user"` // admin or user
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// IsAdmin reports whether the user may manage inventory and accounts
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
