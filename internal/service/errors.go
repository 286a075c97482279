package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is the single sign-in failure; unknown users and
	// wrong passwords are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateIdentity is returned when a user id is already taken.
	ErrDuplicateIdentity = errors.New("identity already exists")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when the caller's role lacks a capability.
	ErrForbidden = errors.New("forbidden")
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrConversationNotFound is returned for unknown or foreign conversations.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrSessionNotFound is returned for unknown, expired or signed-out sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrConversationBusy is returned while a reply is still being generated.
	ErrConversationBusy = errors.New("conversation is busy generating a reply")
	// ErrReplyFailed is returned when the assistant reply could not be fully
	// produced. The conversation still holds a flagged assistant message.
	ErrReplyFailed = errors.New("reply generation failed")
)

func invalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}
