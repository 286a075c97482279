package model

import (
	"time"
)

// UserRole is the closed set of account roles.
type UserRole string

const (
	UserRoleAdmin  UserRole = "Admin"
	UserRoleMember UserRole = "Member"
)

// CanViewDashboard reports whether the role may open the admin dashboard.
func (r UserRole) CanViewDashboard() bool {
	return r == UserRoleAdmin
}

// CanManageUsers reports whether the role may create and list users.
func (r UserRole) CanManageUsers() bool {
	return r == UserRoleAdmin
}

// CanViewOtherUsers reports whether the role may browse another user's
// conversations (read-only).
func (r UserRole) CanViewOtherUsers() bool {
	return r == UserRoleAdmin
}

// UserStatus is a display-only account status.
type UserStatus string

const (
	UserStatusActive UserStatus = "Active"
)

// User is an account record.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	MessageCount int        `json:"message_count"`
	PasswordHash []byte     `json:"-"`
}

// CreateUserRequest is the request to create a member account.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the request to change the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
