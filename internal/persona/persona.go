// Package persona defines the conversational agent records and the
// personality-driven prompt selection policy.
package persona

import "time"

// Persona identifies a configured conversational agent.
// Personas are created and edited by the roster collaborator; the session
// engine reads them and never mutates them.
type Persona struct {
	ID        string
	Name      string
	UserID    string
	CreatedAt time.Time

	// Personality is a scalar in [0,1]: 0 = maximally direct/honest,
	// 1 = maximally validating/forgiving.
	Personality float64
}
