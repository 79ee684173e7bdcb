package model

import "time"

// Role is a user's privilege level. Owner is a singleton known from
// configuration at bootstrap; admins are promoted/demoted by the owner.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// IsAdmin reports whether the role has admin-or-higher privileges.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleOwner
}

// User mirrors the `users` table. Identity is assigned by the chat
// platform, never by this process.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  *string   `db:"username" json:"username,omitempty"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
