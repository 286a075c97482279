package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeError       EventType = "error"
	EventTypeCancel      EventType = "cancel"
	EventTypeTimeout     EventType = "timeout"
	EventTypeFallback    EventType = "fallback"
	EventTypeImageFailed EventType = "image_failed"
	EventTypeConvCreated EventType = "conversation_created"
	EventTypeConvDeleted EventType = "conversation_deleted"
	EventTypeConvRenamed EventType = "conversation_renamed"
	EventTypeUserCreated EventType = "user_created"
)

// ConversationEvent represents an event in a conversation.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Sequence       uint64         `json:"sequence,omitempty"`
}
