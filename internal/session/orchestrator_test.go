package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"maripist/internal/completion"
	"maripist/internal/persona"
	"maripist/internal/store"
)

// fakeStore implements MessageStore in memory. appendErrOn fails the n-th
// Append call (1-based); 0 never fails.
type fakeStore struct {
	mu          sync.Mutex
	records     []store.Record
	loadErr     error
	appendErrOn int
	appendCalls int
}

func (f *fakeStore) Append(userID, personaID, sender, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.appendCalls++
	if f.appendErrOn != 0 && f.appendCalls == f.appendErrOn {
		return "", errors.New("disk full")
	}
	id := fmt.Sprintf("msg-%d", f.appendCalls)
	f.records = append(f.records, store.Record{
		ID: id, UserID: userID, PersonaID: personaID, Sender: sender, Content: content,
	})
	return id, nil
}

func (f *fakeStore) LoadHistory(userID, personaID string) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []store.Record
	for _, r := range f.records {
		if r.UserID == userID && r.PersonaID == personaID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendCalls
}

// fakeClient records the transcripts it receives. When block is non-nil
// Complete waits on it before returning.
type fakeClient struct {
	mu          sync.Mutex
	calls       int
	transcripts [][]completion.Turn
	reply       string
	err         error
	block       chan struct{}
}

func (f *fakeClient) Complete(ctx context.Context, transcript []completion.Turn, personality float64) (string, error) {
	f.mu.Lock()
	f.calls++
	f.transcripts = append(f.transcripts, transcript)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClient) lastTranscript() []completion.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transcripts) == 0 {
		return nil
	}
	return f.transcripts[len(f.transcripts)-1]
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeaker) Speak(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
}

var drCalm = persona.Persona{ID: "dr-calm", Name: "Dr. Calm", Personality: 0.9}

func TestEnsureHistorySeedsGreeting(t *testing.T) {
	st := &fakeStore{}
	o := NewOrchestrator(st, &fakeClient{reply: "hi"}, nil, "local")

	seq, err := o.EnsureHistory(drCalm)
	if err != nil {
		t.Fatalf("EnsureHistory failed: %v", err)
	}
	if len(seq) != 1 {
		t.Fatalf("Expected single greeting turn, got %d", len(seq))
	}
	if seq[0].Text != "Hello! I'm Dr. Calm. What's on your mind today?" {
		t.Errorf("Unexpected greeting: %s", seq[0].Text)
	}
	if seq[0].Sender != SenderAssistant {
		t.Errorf("Greeting must come from the assistant, got %s", seq[0].Sender)
	}
	if !IsGreeting(seq[0].ID) {
		t.Errorf("Greeting id not tagged: %s", seq[0].ID)
	}
	if st.appendCount() != 0 {
		t.Error("Greeting must never be persisted")
	}
}

func TestEnsureHistoryLoadsExisting(t *testing.T) {
	st := &fakeStore{records: []store.Record{
		{ID: "msg-a", UserID: "local", PersonaID: "dr-calm", Sender: SenderUser, Content: "hello"},
		{ID: "msg-b", UserID: "local", PersonaID: "dr-calm", Sender: SenderAssistant, Content: "hi there"},
	}}
	o := NewOrchestrator(st, &fakeClient{}, nil, "local")

	seq, err := o.EnsureHistory(drCalm)
	if err != nil {
		t.Fatalf("EnsureHistory failed: %v", err)
	}
	if len(seq) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(seq))
	}
	for _, m := range seq {
		if IsGreeting(m.ID) {
			t.Error("No greeting for a non-empty history")
		}
	}
}

func TestEnsureHistoryCachesAcrossSelections(t *testing.T) {
	st := &fakeStore{}
	o := NewOrchestrator(st, &fakeClient{}, nil, "local")

	if _, err := o.EnsureHistory(drCalm); err != nil {
		t.Fatalf("EnsureHistory failed: %v", err)
	}

	// Later selections must not re-read the store: a load failure now is
	// invisible because the cached sequence is reused.
	st.mu.Lock()
	st.loadErr = errors.New("store gone")
	st.mu.Unlock()

	if _, err := o.EnsureHistory(drCalm); err != nil {
		t.Errorf("Second selection must use the cache, got error: %v", err)
	}
}

func TestSendHappyPath(t *testing.T) {
	st := &fakeStore{}
	client := &fakeClient{reply: "Tell me more about that."}
	speaker := &fakeSpeaker{}
	o := NewOrchestrator(st, client, speaker, "local")

	if err := o.Send(context.Background(), drCalm, "I had a rough day"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	seq, ok := o.History("dr-calm")
	if !ok {
		t.Fatal("History missing after send")
	}
	// greeting + user turn + reply
	if len(seq) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(seq))
	}

	user := seq[1]
	if !IsDurable(user.ID) {
		t.Errorf("User turn must carry the canonical id after persistence, got %s", user.ID)
	}
	if user.Text != "I had a rough day" {
		t.Errorf("User text mutated: %s", user.Text)
	}

	reply := seq[2]
	if !IsDurable(reply.ID) || reply.Sender != SenderAssistant {
		t.Errorf("Unexpected reply turn: %+v", reply)
	}
	if reply.Text != "Tell me more about that." {
		t.Errorf("Unexpected reply text: %s", reply.Text)
	}

	// The greeting never reaches the completion service.
	transcript := client.lastTranscript()
	if len(transcript) != 1 {
		t.Fatalf("Expected 1 transcript turn, got %d", len(transcript))
	}
	if transcript[0].Role != completion.RoleUser || transcript[0].Content != "I had a rough day" {
		t.Errorf("Unexpected transcript: %+v", transcript[0])
	}

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	if len(speaker.spoken) != 1 || speaker.spoken[0] != "Tell me more about that." {
		t.Errorf("Reply not handed to playback: %v", speaker.spoken)
	}
}

func TestSendEmptyInput(t *testing.T) {
	o := NewOrchestrator(&fakeStore{}, &fakeClient{}, nil, "local")
	if err := o.Send(context.Background(), drCalm, "   "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestSendUserPersistFailure(t *testing.T) {
	st := &fakeStore{appendErrOn: 1}
	client := &fakeClient{reply: "never"}
	o := NewOrchestrator(st, client, nil, "local")

	if err := o.Send(context.Background(), drCalm, "Hello"); err != nil {
		t.Fatalf("Contained failure must not surface as an error: %v", err)
	}

	seq, _ := o.History("dr-calm")
	last := seq[len(seq)-1]
	if !IsFailed(last.ID) {
		t.Errorf("User turn must be re-tagged failed, got %s", last.ID)
	}
	if last.Text != "Hello (Error saving)" {
		t.Errorf("Expected save-failure annotation, got %q", last.Text)
	}
	if last.Sender != SenderUser {
		t.Errorf("Failed turn must keep the user sender, got %s", last.Sender)
	}

	// No completion request for an unpersisted user turn.
	if client.callCount() != 0 {
		t.Errorf("Expected 0 completion calls, got %d", client.callCount())
	}
}

func TestSendCompletionFailure(t *testing.T) {
	st := &fakeStore{}
	client := &fakeClient{err: errors.New("service unavailable")}
	o := NewOrchestrator(st, client, nil, "local")

	if err := o.Send(context.Background(), drCalm, "Hello"); err != nil {
		t.Fatalf("Contained failure must not surface as an error: %v", err)
	}

	seq, _ := o.History("dr-calm")
	last := seq[len(seq)-1]
	if last.Sender != SenderAssistant || !IsFailed(last.ID) {
		t.Errorf("Expected a failed assistant turn, got %+v", last)
	}
	if !strings.HasPrefix(last.Text, "Sorry, I encountered an error.") {
		t.Errorf("Unexpected error turn text: %q", last.Text)
	}

	// The user turn stays durable: only the user turn was persisted.
	if st.appendCount() != 1 {
		t.Errorf("Error turn must not be persisted, appends=%d", st.appendCount())
	}
	user := seq[len(seq)-2]
	if !IsDurable(user.ID) || user.Text != "Hello" {
		t.Errorf("User turn must survive a completion failure: %+v", user)
	}
}

func TestSendReplyPersistFailure(t *testing.T) {
	st := &fakeStore{appendErrOn: 2}
	client := &fakeClient{reply: "Here is my advice"}
	o := NewOrchestrator(st, client, nil, "local")

	if err := o.Send(context.Background(), drCalm, "Hello"); err != nil {
		t.Fatalf("Contained failure must not surface as an error: %v", err)
	}

	seq, _ := o.History("dr-calm")
	last := seq[len(seq)-1]
	if !IsFailed(last.ID) {
		t.Errorf("Unpersisted reply must carry a failed id, got %s", last.ID)
	}
	if last.Text != "Here is my advice (Error saving)" {
		t.Errorf("Expected annotated reply, got %q", last.Text)
	}

	// A follow-up send must not replay the unpersisted reply to the
	// completion service.
	if err := o.Send(context.Background(), drCalm, "Next message"); err != nil {
		t.Fatalf("Second send failed: %v", err)
	}
	for _, turn := range client.lastTranscript() {
		if strings.Contains(turn.Content, "Here is my advice") {
			t.Errorf("Failed reply leaked into transcript: %+v", turn)
		}
	}
}

func TestSendSingleFlightPerPersona(t *testing.T) {
	st := &fakeStore{}
	client := &fakeClient{reply: "slow reply", block: make(chan struct{})}
	o := NewOrchestrator(st, client, nil, "local")

	errCh := make(chan error, 1)
	go func() {
		errCh <- o.Send(context.Background(), drCalm, "first")
	}()

	// Wait until the first send reaches the completion service.
	deadline := time.After(2 * time.Second)
	for client.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("First send never reached the completion client")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := o.Send(context.Background(), drCalm, "second"); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("Expected ErrSendInFlight for the same persona, got %v", err)
	}

	// Only dr-calm is marked in flight; other personas are unaffected.
	o.mu.Lock()
	if _, busy := o.inflight["dr-blunt"]; busy {
		t.Error("Other persona must not be marked in flight")
	}
	o.mu.Unlock()

	close(client.block)
	if err := <-errCh; err != nil {
		t.Fatalf("First send failed: %v", err)
	}

	// After settling, the persona accepts sends again.
	if err := o.Send(context.Background(), drCalm, "third"); err != nil {
		t.Fatalf("Send after settle failed: %v", err)
	}
}

func TestBuildTranscriptFiltersNonDurable(t *testing.T) {
	seq := []Message{
		{ID: GreetingID("p"), Sender: SenderAssistant, Text: "greeting"},
		{ID: "msg-1", Sender: SenderUser, Text: "kept user"},
		{ID: NewPlaceholderID(), Sender: SenderUser, Text: "optimistic"},
		{ID: NewFailedID(), Sender: SenderAssistant, Text: "error turn"},
		{ID: "msg-2", Sender: SenderAssistant, Text: "kept reply"},
	}

	transcript := buildTranscript(seq)
	if len(transcript) != 2 {
		t.Fatalf("Expected 2 durable turns, got %d", len(transcript))
	}
	if transcript[0].Role != completion.RoleUser || transcript[0].Content != "kept user" {
		t.Errorf("Unexpected first turn: %+v", transcript[0])
	}
	if transcript[1].Role != completion.RoleAssistant || transcript[1].Content != "kept reply" {
		t.Errorf("Unexpected second turn: %+v", transcript[1])
	}
}

func TestSendHistoryLoadFailureRejects(t *testing.T) {
	st := &fakeStore{loadErr: errors.New("corrupt db")}
	o := NewOrchestrator(st, &fakeClient{}, nil, "local")

	err := o.Send(context.Background(), drCalm, "Hello")
	if err == nil {
		t.Fatal("Expected error when history cannot be loaded")
	}
	// Nothing was shown, nothing was persisted.
	if _, ok := o.History("dr-calm"); ok {
		t.Error("No history entry should exist after a rejected send")
	}
	if st.appendCount() != 0 {
		t.Error("Rejected send must not persist anything")
	}
}
