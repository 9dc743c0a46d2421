// Package voice owns the speech capture and playback state machines. Both
// machines cycle between idle and active for the lifetime of the
// conversation view and are mutually non-blocking with respect to message
// sending. The platform speech devices are reached only through the
// Recognizer and Synthesizer boundaries; every platform event is translated
// into one explicit call, never into shared variables.
package voice

import (
	"context"
	"errors"
)

// CaptureState enumerates the capture machine's states.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureListening
)

func (s CaptureState) String() string {
	if s == CaptureListening {
		return "listening"
	}
	return "idle"
}

// PlaybackState enumerates the playback machine's states.
type PlaybackState int

const (
	PlaybackIdle PlaybackState = iota
	PlaybackSpeaking
)

func (s PlaybackState) String() string {
	if s == PlaybackSpeaking {
		return "speaking"
	}
	return "idle"
}

// Result is the outcome of one listening session: a final transcript or a
// capture-level error.
type Result struct {
	Transcript string
	Err        error
}

// Recognizer is the platform speech-capture boundary. Start delivers at
// most one Result on the returned channel and then closes it; Cancel ends
// the session early (the channel closes without a Result).
type Recognizer interface {
	Available() bool
	Start(ctx context.Context) (<-chan Result, error)
	Cancel()
}

// Voice identifies one synthesis voice by name and language tag.
type Voice struct {
	Name string
	Lang string
}

// Synthesizer is the platform text-to-speech boundary. Speak blocks until
// the utterance finishes or ctx is cancelled. Voices may be enumerated
// lazily; the platform signals changes by calling Playback.VoicesChanged.
type Synthesizer interface {
	Voices() []Voice
	Speak(ctx context.Context, text string, v Voice) error
}

// ErrCaptureUnavailable is returned when the platform has no speech
// capture capability.
var ErrCaptureUnavailable = errors.New("voice: speech capture not available")
