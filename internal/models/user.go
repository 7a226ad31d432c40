package models

import "time"

// UserRole represents the available roles for the permission system.
type UserRole string

const (
	RoleAdmin          UserRole = "ADMIN"
	RoleProjectManager UserRole = "PROJECT_MANAGER"
	RoleEmployee       UserRole = "EMPLOYEE"
)

// ValidRole reports whether the role is one of the known values.
func ValidRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleEmployee:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Name         string     `db:"name" json:"name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Snapshot returns the immutable actor/recipient view used in notification
// contexts. It is a copy, not a live reference.
func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// UserSnapshot is the minimal user view carried through notification dispatch.
type UserSnapshot struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	Active   *bool
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
