package service

import (
	"strings"
	"unicode/utf8"
)

const (
	maxContentBytes = 100000 // ~100KB
	maxTitleRunes   = 256

	// Derived titles keep titleMaxRunes runes plus "..." once the source
	// exceeds titleMaxRunes+titleSlack runes.
	titleMaxRunes = 42
	titleSlack    = 3
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalidInput("content cannot be empty")
	}
	if len(content) > maxContentBytes {
		return invalidInput("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return invalidInput("content must be valid UTF-8")
	}
	return nil
}

// ValidateTitle validates a trimmed conversation title.
func ValidateTitle(title string) error {
	if title == "" {
		return invalidInput("title cannot be empty")
	}
	if !utf8.ValidString(title) {
		return invalidInput("title must be valid UTF-8")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return invalidInput("title exceeds maximum length")
	}
	return nil
}

// DeriveTitle turns a first prompt into a conversation title.
func DeriveTitle(content string) string {
	s := strings.Join(strings.Fields(content), " ")
	r := []rune(s)
	if len(r) > titleMaxRunes+titleSlack {
		return string(r[:titleMaxRunes]) + "..."
	}
	return s
}
