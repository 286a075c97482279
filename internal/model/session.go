package model

import (
	"time"
)

// ViewMode selects which surface a session is presented with.
type ViewMode string

const (
	ViewModeChat      ViewMode = "chat"
	ViewModeDashboard ViewMode = "dashboard"
)

// Session is the interaction state of one signed-in client.
type Session struct {
	ID             string    `json:"id"`
	LoggedInUserID string    `json:"logged_in_user_id"`
	ActiveUserID   string    `json:"active_user_id"`
	Role           UserRole  `json:"role"`
	ViewMode       ViewMode  `json:"view_mode"`
	CreatedAt      time.Time `json:"created_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !s.ExpiresAt.IsZero() && !t.Before(s.ExpiresAt)
}

// ViewingSelf reports whether the session is looking at its own conversations.
// Conversations of other users are read-only.
func (s *Session) ViewingSelf() bool {
	return s.ActiveUserID == s.LoggedInUserID
}

// SignInRequest is the request to sign in.
type SignInRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// SignInResponse is returned after a successful sign-in.
type SignInResponse struct {
	Token   string   `json:"token"`
	Session *Session `json:"session"`
	User    *User    `json:"user"`
}

// SetViewModeRequest switches the session between chat and dashboard.
type SetViewModeRequest struct {
	Mode ViewMode `json:"mode"`
}

// ViewUserRequest selects whose conversations an admin session shows.
type ViewUserRequest struct {
	UserID string `json:"user_id"`
}
