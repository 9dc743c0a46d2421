package voice

import (
	"context"
	"strings"
	"sync"

	"maripist/internal/logging"
)

// Playback is the text-to-speech state machine: Idle <-> Speaking.
// A new utterance preempts any in-flight one; utterances are never queued.
type Playback struct {
	mu           sync.Mutex
	synth        Synthesizer
	state        PlaybackState
	voices       []Voice
	defaultVoice string
	langPrefix   string
	cancel       context.CancelFunc
	gen          int
}

// NewPlayback creates a playback machine. defaultVoice is matched by exact
// name; langPrefix selects the fallback voice family (e.g. "en").
func NewPlayback(synth Synthesizer, defaultVoice, langPrefix string) *Playback {
	p := &Playback{
		synth:        synth,
		defaultVoice: defaultVoice,
		langPrefix:   langPrefix,
	}
	if synth != nil {
		p.voices = synth.Voices()
	}
	return p
}

// State returns the current playback state.
func (p *Playback) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// VoicesChanged refreshes the available-voices set. The platform loads
// voices asynchronously and calls this whenever the set changes.
func (p *Playback) VoicesChanged() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.synth == nil {
		return
	}
	p.voices = p.synth.Voices()
	logging.VoiceDebug("Voices refreshed: count=%d", len(p.voices))
}

// Speak starts playback of text, cancelling any in-flight utterance first.
// When no voices are enumerated yet the call is silently skipped - voices
// may still be loading and a missing opener is not a user-facing error.
func (p *Playback) Speak(text string) {
	if p.synth == nil || strings.TrimSpace(text) == "" {
		return
	}

	p.mu.Lock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	v, ok := p.pickVoiceLocked()
	if !ok {
		p.state = PlaybackIdle
		p.mu.Unlock()
		logging.Voice("Playback skipped: no voices enumerated")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.gen++
	gen := p.gen
	p.state = PlaybackSpeaking
	p.mu.Unlock()

	logging.VoiceDebug("Playback started: voice=%s text_len=%d", v.Name, len(text))

	go func() {
		err := p.synth.Speak(ctx, text, v)

		p.mu.Lock()
		if p.gen == gen {
			p.state = PlaybackIdle
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()

		if err != nil && ctx.Err() == nil {
			logging.Get(logging.CategoryVoice).Warn("Playback error: %v", err)
		}
	}()
}

// Stop cancels any in-flight utterance.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state = PlaybackIdle
}

// pickVoiceLocked selects the utterance voice: exact default-name match,
// then the first voice matching the language prefix, then the first
// enumerated voice. Returns false when no voices are enumerated.
func (p *Playback) pickVoiceLocked() (Voice, bool) {
	if len(p.voices) == 0 {
		p.voices = p.synth.Voices()
	}
	if len(p.voices) == 0 {
		return Voice{}, false
	}

	if p.defaultVoice != "" {
		for _, v := range p.voices {
			if v.Name == p.defaultVoice {
				return v, true
			}
		}
	}
	if p.langPrefix != "" {
		for _, v := range p.voices {
			if strings.HasPrefix(v.Lang, p.langPrefix) {
				return v, true
			}
		}
	}
	return p.voices[0], true
}
