package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"maripist/internal/config"
	"maripist/internal/logging"
	"maripist/internal/persona"
	"maripist/internal/session"
	"maripist/internal/voice"
)

// newSpeaker builds the playback half of the voice subsystem. Returns nil
// when voice is disabled or the platform has no synthesizer, which the
// orchestrator treats as "skip playback".
func newSpeaker(cfg *config.UserConfig) session.Speaker {
	if cfg == nil || !cfg.Voice.Enabled {
		return nil
	}
	synth := platformSynthesizer()
	if synth == nil {
		logging.Voice("Playback disabled: no platform synthesizer")
		return nil
	}
	return voice.NewPlayback(synth, cfg.Voice.DefaultVoice, cfg.Voice.GetLanguagePrefix())
}

// platformSynthesizer returns the platform text-to-speech backend, or nil
// when the build has none. Backends implement voice.Synthesizer.
func platformSynthesizer() voice.Synthesizer {
	return nil
}

// platformRecognizer returns the platform speech-capture backend, or nil
// when the build has none. Backends implement voice.Recognizer.
func platformRecognizer() voice.Recognizer {
	return nil
}

// conversationView is the line-oriented conversation UI. One persona is
// active at a time; the capture machine feeds recognized speech into the
// same send path as typed input.
type conversationView struct {
	eng         *engine
	active      persona.Persona
	capture     *voice.Capture
	captureGone bool
	out         *bufio.Writer

	// pending transcripts from voice capture, drained by the input loop
	transcripts chan string
}

func runConversation() error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	view := &conversationView{
		eng:         eng,
		out:         bufio.NewWriter(os.Stdout),
		transcripts: make(chan string, 4),
	}
	view.capture = voice.NewCapture(platformRecognizer(), func(transcript string) {
		select {
		case view.transcripts <- transcript:
		default:
			logging.Get(logging.CategoryVoice).Warn("Transcript dropped: input queue full")
		}
	})
	defer view.capture.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view.printf("Maripist - %d personas available. Type /help for commands.\n\n", len(eng.personas))
	view.listPersonas()

	if err := view.selectPersona(eng.personas[0]); err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		view.drainTranscripts(ctx)
		view.printf("\n%s> ", view.active.Name)
		view.flush()

		if !scanner.Scan() {
			view.printf("\n")
			view.flush()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := view.handleCommand(ctx, line)
			if err != nil {
				view.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		view.send(ctx, line)
	}
}

func (v *conversationView) printf(format string, args ...interface{}) {
	fmt.Fprintf(v.out, format, args...)
}

func (v *conversationView) flush() {
	_ = v.out.Flush()
}

func (v *conversationView) listPersonas() {
	for i, p := range v.eng.personas {
		v.printf("  %d. %s (personality %.2f)\n", i+1, p.Name, p.Personality)
	}
	v.flush()
}

// selectPersona switches the active persona, loading (and greeting-seeding)
// its history on first selection. Leaving a persona releases any active
// capture session.
func (v *conversationView) selectPersona(p persona.Persona) error {
	v.capture.Stop()

	seq, err := v.eng.orchestrator.EnsureHistory(p)
	if err != nil {
		return err
	}
	v.active = p

	v.printf("\n--- %s ---\n", p.Name)
	for _, m := range seq {
		printTurnTo(v.out, p, m)
	}
	v.flush()
	return nil
}

func (v *conversationView) send(ctx context.Context, text string) {
	// Pick up any personality edit made since the last send.
	v.active = v.eng.reloadPersona(v.active)

	err := v.eng.orchestrator.Send(ctx, v.active, text)
	switch {
	case errors.Is(err, session.ErrEmptyInput):
		return
	case errors.Is(err, session.ErrSendInFlight):
		v.printf("still waiting for %s to respond\n", v.active.Name)
		return
	case err != nil:
		v.printf("error: %v\n", err)
		return
	}

	seq, _ := v.eng.orchestrator.History(v.active.ID)
	for _, m := range tailTurns(seq, 2) {
		printTurnTo(v.out, v.active, m)
	}
	v.flush()
}

// drainTranscripts sends any queued voice transcripts through the normal
// send path before the next prompt.
func (v *conversationView) drainTranscripts(ctx context.Context) {
	for {
		select {
		case t := <-v.transcripts:
			v.printf("(heard) %s\n", t)
			v.send(ctx, t)
		default:
			return
		}
	}
}

func (v *conversationView) handleCommand(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help":
		v.printf("  /personas          list personas\n")
		v.printf("  /switch <n|name>   switch active persona\n")
		v.printf("  /listen            toggle voice capture\n")
		v.printf("  /history           reprint the conversation\n")
		v.printf("  /quit              exit\n")
		v.flush()
		return false, nil

	case "/personas":
		v.listPersonas()
		return false, nil

	case "/switch":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /switch <number|name>")
		}
		key := strings.Join(fields[1:], " ")
		if n, convErr := strconv.Atoi(key); convErr == nil {
			if n < 1 || n > len(v.eng.personas) {
				return false, fmt.Errorf("persona number out of range")
			}
			return false, v.selectPersona(v.eng.personas[n-1])
		}
		p, ok := v.eng.findPersona(key)
		if !ok {
			return false, fmt.Errorf("unknown persona %q", key)
		}
		return false, v.selectPersona(p)

	case "/listen":
		if v.captureGone {
			return false, nil
		}
		if err := v.capture.Toggle(ctx); err != nil {
			if errors.Is(err, voice.ErrCaptureUnavailable) {
				// Capability errors are surfaced once; afterwards the
				// command is a silent no-op.
				v.captureGone = true
				v.printf("voice capture is not available on this platform\n")
				v.flush()
				return false, nil
			}
			return false, err
		}
		v.printf("capture: %s\n", v.capture.State())
		v.flush()
		return false, nil

	case "/history":
		seq, ok := v.eng.orchestrator.History(v.active.ID)
		if !ok {
			return false, nil
		}
		for _, m := range seq {
			printTurnTo(v.out, v.active, m)
		}
		v.flush()
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
}

func printTurn(p persona.Persona, m session.Message) {
	w := bufio.NewWriter(os.Stdout)
	printTurnTo(w, p, m)
	_ = w.Flush()
}

func printTurnTo(w *bufio.Writer, p persona.Persona, m session.Message) {
	label := "you"
	if m.Sender == session.SenderAssistant {
		label = p.Name
	}
	marker := ""
	if session.IsFailed(m.ID) {
		marker = " !"
	}
	fmt.Fprintf(w, "[%s%s] %s\n", label, marker, m.Text)
}
