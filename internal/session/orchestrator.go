package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"maripist/internal/completion"
	"maripist/internal/logging"
	"maripist/internal/persona"
	"maripist/internal/store"
)

var (
	// ErrEmptyInput rejects blank or whitespace-only sends.
	ErrEmptyInput = errors.New("session: empty input")

	// ErrSendInFlight rejects a second send for a persona whose previous
	// send has not settled.
	ErrSendInFlight = errors.New("session: send already in flight for persona")
)

// MessageStore is the durable store boundary used by the orchestrator.
type MessageStore interface {
	Append(userID, personaID, sender, content string) (string, error)
	LoadHistory(userID, personaID string) ([]store.Record, error)
}

// Speaker is the playback entry point of the voice subsystem. Playback
// failures never propagate back into the send cycle.
type Speaker interface {
	Speak(text string)
}

// sendState tracks where a send operation is in its lifecycle.
type sendState int

const (
	stateComposing sendState = iota
	statePersistingUserTurn
	stateAwaitingCompletion
	statePersistingAssistantTurn
	stateSettled
	stateError
)

func (s sendState) String() string {
	switch s {
	case stateComposing:
		return "composing"
	case statePersistingUserTurn:
		return "persisting-user-turn"
	case stateAwaitingCompletion:
		return "awaiting-completion"
	case statePersistingAssistantTurn:
		return "persisting-assistant-turn"
	case stateSettled:
		return "settled"
	default:
		return "error"
	}
}

// Orchestrator drives the send cycle: optimistic insertion, persistence,
// completion request, response persistence, cache update and playback.
// One orchestrator serves all personas of a single user; it is constructed
// at conversation-view mount and discarded at unmount.
type Orchestrator struct {
	store   MessageStore
	client  completion.Client
	speaker Speaker
	cache   *HistoryCache
	userID  string

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewOrchestrator creates an orchestrator. speaker may be nil when playback
// is unavailable.
func NewOrchestrator(st MessageStore, client completion.Client, speaker Speaker, userID string) *Orchestrator {
	return &Orchestrator{
		store:    st,
		client:   client,
		speaker:  speaker,
		cache:    NewHistoryCache(),
		userID:   userID,
		inflight: make(map[string]struct{}),
	}
}

// History returns the cached sequence for a persona, if loaded.
func (o *Orchestrator) History(personaID string) ([]Message, bool) {
	return o.cache.Get(personaID)
}

// EnsureHistory loads a persona's history on first selection. An empty
// durable history is seeded with exactly one synthetic greeting turn that
// is never persisted. Later selections reuse the cached sequence.
func (o *Orchestrator) EnsureHistory(p persona.Persona) ([]Message, error) {
	if seq, ok := o.cache.Get(p.ID); ok {
		return seq, nil
	}

	records, err := o.store.LoadHistory(o.userID, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", p.Name, err)
	}

	seq := make([]Message, 0, len(records)+1)
	for _, r := range records {
		seq = append(seq, Message{
			ID:        r.ID,
			PersonaID: r.PersonaID,
			Sender:    r.Sender,
			Text:      r.Content,
		})
	}

	if len(seq) == 0 {
		seq = append(seq, Message{
			ID:        GreetingID(p.ID),
			PersonaID: p.ID,
			Sender:    SenderAssistant,
			Text:      fmt.Sprintf("Hello! I'm %s. What's on your mind today?", p.Name),
		})
		logging.SessionDebug("Seeded greeting for persona=%s", p.ID)
	}

	o.cache.Set(p.ID, seq)
	logging.Session("History loaded: persona=%s turns=%d", p.ID, len(seq))
	return seq, nil
}

// Send runs one full send cycle for the given persona and input text.
//
// Rejections (empty input, send in flight, history load failure) return an
// error before anything is shown to the user. Failures after the optimistic
// insertion are contained: they surface as re-tagged or appended turns in
// the cache and Send still returns nil. A turn, once shown, is never
// deleted - only re-labeled.
func (o *Orchestrator) Send(ctx context.Context, p persona.Persona, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	// Single-flight per persona. Sends for different personas proceed
	// independently.
	o.mu.Lock()
	if _, busy := o.inflight[p.ID]; busy {
		o.mu.Unlock()
		return ErrSendInFlight
	}
	o.inflight[p.ID] = struct{}{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inflight, p.ID)
		o.mu.Unlock()
	}()

	seq, err := o.EnsureHistory(p)
	if err != nil {
		return err
	}

	state := stateComposing
	logging.SessionDebug("Send: persona=%s state=%s input_len=%d", p.ID, state, len(text))

	// Optimistic insertion: the user sees their turn before any network
	// round trip completes.
	placeholder := Message{
		ID:        NewPlaceholderID(),
		PersonaID: p.ID,
		Sender:    SenderUser,
		Text:      text,
	}
	seq = append(seq, placeholder)
	o.cache.Set(p.ID, seq)

	state = statePersistingUserTurn
	logging.SessionDebug("Send: persona=%s state=%s", p.ID, state)

	canonicalID, err := o.store.Append(o.userID, p.ID, SenderUser, text)
	if err != nil {
		// No completion request for an unpersisted user turn.
		seq[len(seq)-1] = Message{
			ID:        FailedID(placeholder.ID),
			PersonaID: p.ID,
			Sender:    SenderUser,
			Text:      text + " (Error saving)",
		}
		o.cache.Set(p.ID, seq)
		logging.Get(logging.CategorySession).Error("Send: persona=%s state=%s user turn persist failed: %v", p.ID, stateError, err)
		return nil
	}
	seq[len(seq)-1].ID = canonicalID
	o.cache.Set(p.ID, seq)

	state = stateAwaitingCompletion
	logging.SessionDebug("Send: persona=%s state=%s", p.ID, state)

	reply, err := o.client.Complete(ctx, buildTranscript(seq), p.Personality)
	if err != nil {
		// Locally-visible error turn, never persisted.
		seq = append(seq, Message{
			ID:        NewFailedID(),
			PersonaID: p.ID,
			Sender:    SenderAssistant,
			Text:      fmt.Sprintf("Sorry, I encountered an error. %v", err),
		})
		o.cache.Set(p.ID, seq)
		logging.Get(logging.CategorySession).Error("Send: persona=%s state=%s completion failed: %v", p.ID, stateError, err)
		return nil
	}

	state = statePersistingAssistantTurn
	logging.SessionDebug("Send: persona=%s state=%s reply_len=%d", p.ID, state, len(reply))

	replyMsg := Message{
		PersonaID: p.ID,
		Sender:    SenderAssistant,
		Text:      reply,
	}
	replyID, err := o.store.Append(o.userID, p.ID, SenderAssistant, reply)
	if err != nil {
		// The user still reads the reply, but it is excluded from future
		// transcripts and will not survive a reload.
		replyMsg.ID = NewFailedID()
		replyMsg.Text = reply + " (Error saving)"
		logging.Get(logging.CategorySession).Error("Send: persona=%s state=%s reply persist failed: %v", p.ID, stateError, err)
	} else {
		replyMsg.ID = replyID
	}
	seq = append(seq, replyMsg)
	o.cache.Set(p.ID, seq)

	// Playback failure is swallowed by the voice subsystem and never
	// blocks or reverses the transitions above.
	if o.speaker != nil {
		o.speaker.Speak(reply)
	}

	state = stateSettled
	logging.Session("Send: persona=%s state=%s", p.ID, state)
	return nil
}

// buildTranscript converts the cached sequence into the outbound
// role-tagged transcript. Placeholder, failed and greeting turns never
// reach the completion service.
func buildTranscript(seq []Message) []completion.Turn {
	transcript := make([]completion.Turn, 0, len(seq))
	for _, m := range seq {
		if !IsDurable(m.ID) {
			continue
		}
		role := completion.RoleUser
		if m.Sender == SenderAssistant {
			role = completion.RoleAssistant
		}
		transcript = append(transcript, completion.Turn{Role: role, Content: m.Text})
	}
	return transcript
}
