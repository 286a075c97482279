// Package model defines data structures for the chat console.
package model

import (
	"time"
)

const (
	// DefaultTitle is the placeholder title of a fresh conversation. A
	// conversation still carrying it is retitled from its first message.
	DefaultTitle = "New chat"

	// WelcomeTitle is the title of the conversation seeded for the admin.
	WelcomeTitle = "Welcome"
)

// Conversation represents a conversation thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// HasDefaultTitle reports whether the title is still the placeholder.
func (c *Conversation) HasDefaultTitle() bool {
	return c.Title == DefaultTitle
}

// Summary returns the conversation without its message log.
func (c *Conversation) Summary(active bool) ConversationSummary {
	s := ConversationSummary{
		ID:           c.ID,
		UserID:       c.UserID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
		Active:       active,
	}
	if n := len(c.Messages); n > 0 {
		last := c.Messages[n-1]
		s.LastMessage = &last
	}
	return s
}

// ConversationSummary is the list view of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	Active       bool      `json:"active"`
}

// UpdateConversationRequest is the request to rename a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
	ActiveID      string                `json:"active_id"`
}
