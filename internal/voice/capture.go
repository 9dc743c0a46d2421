package voice

import (
	"context"
	"sync"

	"maripist/internal/logging"
)

// Capture is the speech-to-text state machine: Idle <-> Listening.
// A final transcript is forwarded to onTranscript exactly as if the user
// had typed it - the single coupling point to the session orchestrator.
// At most one capture session is active at a time.
type Capture struct {
	mu           sync.Mutex
	rec          Recognizer
	state        CaptureState
	gen          int
	onTranscript func(string)
}

// NewCapture creates a capture machine. onTranscript must not be nil.
func NewCapture(rec Recognizer, onTranscript func(string)) *Capture {
	return &Capture{rec: rec, onTranscript: onTranscript}
}

// State returns the current capture state.
func (c *Capture) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Toggle flips the machine: Idle starts a listening session, Listening
// cancels the active one. Starting requires platform capture capability;
// without it the toggle is rejected and the state stays Idle.
func (c *Capture) Toggle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CaptureListening {
		c.rec.Cancel()
		c.state = CaptureIdle
		logging.Voice("Capture cancelled by toggle")
		return nil
	}

	if c.rec == nil || !c.rec.Available() {
		return ErrCaptureUnavailable
	}

	results, err := c.rec.Start(ctx)
	if err != nil {
		logging.Get(logging.CategoryVoice).Error("Capture start failed: %v", err)
		return err
	}

	c.gen++
	c.state = CaptureListening
	logging.Voice("Capture started")
	go c.await(results, c.gen)
	return nil
}

// Stop cancels any active capture session, releasing the capture device.
// Called when the conversation view is left.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CaptureListening {
		c.rec.Cancel()
		c.state = CaptureIdle
		logging.Voice("Capture stopped")
	}
}

// await consumes the single result of a listening session and resets the
// machine to Idle. Errors are transient: logged, not surfaced to sending.
// gen ties the goroutine to the session that spawned it: a cancelled
// session's channel may close after a new session has started, and that
// late close must not reset the new session's state or deliver into it.
func (c *Capture) await(results <-chan Result, gen int) {
	res, ok := <-results

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = CaptureIdle
	c.mu.Unlock()

	if !ok {
		// Session cancelled before a final transcript.
		return
	}
	if res.Err != nil {
		logging.Get(logging.CategoryVoice).Warn("Capture error: %v", res.Err)
		return
	}
	if res.Transcript == "" {
		return
	}

	logging.VoiceDebug("Capture transcript: len=%d", len(res.Transcript))
	c.onTranscript(res.Transcript)
}
