package models

import (
	"fmt"
	"time"
)

// Message represents an individual communication entry within a conversation. Messages are immutable
// once appended to a conversation history, and their order is the order in which they are replayed to
// the model backend.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time

	// Model would be filled for assistant messages produced by the backend.
	Model string
	// TotalDuration would be filled for assistant messages produced by the backend. It holds the
	// backend-reported total generation time.
	TotalDuration time.Duration
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleSystem represents a system prompt message.
	RoleSystem Role = "system"
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message, either a backend reply or a synthetic
	// message describing how a request ended.
	RoleAssistant Role = "assistant"
)

const (
	// StoppedContent is the assistant message appended when the user aborts an in-flight request.
	StoppedContent = "Request stopped by the user."
	// FailedContent is the assistant message appended when a request fails for any other reason.
	FailedContent = "An error occurred. Please try again."
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// FormatDuration renders a generation duration in seconds with two decimals, e.g. "2.00 seconds".
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2f seconds", d.Seconds())
}
