// Package session maintains per-persona message history with optimistic
// local mutation and server reconciliation, and orchestrates the send cycle
// against the completion service.
package session

import (
	"strings"

	"github.com/google/uuid"
)

// Sender roles for conversation turns.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Identifier prefixes. Three identifier classes coexist in the cache:
// canonical ids come from the store; pending- marks an optimistic turn the
// store has not accepted yet; failed- marks a turn that is not part of the
// durable record. greeting- tags the synthetic opener seeded into empty
// histories. Only canonical turns are sent to the completion service.
const (
	placeholderPrefix = "pending-"
	failedPrefix      = "failed-"
	greetingPrefix    = "greeting-"
)

// Message is one conversational turn as seen by the user.
type Message struct {
	ID        string
	PersonaID string
	Sender    string
	Text      string
}

// NewPlaceholderID returns a fresh placeholder identifier for an
// optimistically inserted turn.
func NewPlaceholderID() string {
	return placeholderPrefix + uuid.NewString()
}

// NewFailedID returns a fresh failed identifier for a locally synthesized
// error turn.
func NewFailedID() string {
	return failedPrefix + uuid.NewString()
}

// FailedID re-tags an existing identifier as failed, preserving its suffix
// so the turn's local insertion stays auditable.
func FailedID(id string) string {
	return failedPrefix + strings.TrimPrefix(id, placeholderPrefix)
}

// GreetingID returns the identifier of a persona's synthetic greeting turn.
func GreetingID(personaID string) string {
	return greetingPrefix + personaID
}

// IsPlaceholder reports whether id belongs to the placeholder class.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// IsFailed reports whether id belongs to the failed class.
func IsFailed(id string) bool {
	return strings.HasPrefix(id, failedPrefix)
}

// IsGreeting reports whether id tags a synthetic greeting turn.
func IsGreeting(id string) bool {
	return strings.HasPrefix(id, greetingPrefix)
}

// IsDurable reports whether id is a canonical, store-assigned identifier.
func IsDurable(id string) bool {
	return !IsPlaceholder(id) && !IsFailed(id) && !IsGreeting(id)
}
