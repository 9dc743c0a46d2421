// Package completion sends role-tagged conversation transcripts to a remote
// language-model service and returns a single reply per request.
package completion

import (
	"context"
	"errors"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged entry of the outbound transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client requests one completion per invocation. The transcript contains
// only user/assistant turns; the client derives and prepends the system
// instruction from the personality value. No streaming, no automatic retry -
// retry policy belongs to the caller.
type Client interface {
	Complete(ctx context.Context, transcript []Turn, personality float64) (string, error)
}

var (
	// ErrNotConfigured is returned when no API key is available.
	// No request is attempted.
	ErrNotConfigured = errors.New("completion: API key not configured")

	// ErrEmptyResponse is returned when the service replies with no content.
	ErrEmptyResponse = errors.New("completion: empty response from service")

	// ErrNoTranscript is returned when the transcript has no turns.
	ErrNoTranscript = errors.New("completion: no transcript turns provided")
)
