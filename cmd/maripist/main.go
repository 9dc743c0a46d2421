package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"maripist/internal/config"
	"maripist/internal/logging"
	"maripist/internal/persona"
	"maripist/internal/session"
	"maripist/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose     bool
	homeDir     string
	rosterPath  string
	personaFlag string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "maripist",
	Short: "Maripist - a conversational session engine for persona-based AI therapy chat",
	Long: `Maripist keeps one durable conversation per therapist persona and drives
the send cycle against an LLM completion service (OpenAI or Gemini).

Each persona carries a personality value in [0,1] that selects the tone of
its responses, from very direct to very forgiving. Messages appear locally
before the server confirms them and are reconciled once it does; failures
are shown in place, never silently dropped.

Run without arguments to start the interactive conversation view.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Interactive mode has its own line-oriented UI; keep zap quiet there.
		if cmd == cmd.Root() {
			return nil
		}

		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConversation()
	},
}

// sendCmd sends one message to a persona and prints the reply
var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a single message to a persona and print the reply",
	Long: `Runs one full send cycle outside the interactive view: the message is
persisted, the persona's durable history is sent to the completion
service, and the reply is persisted and printed.

Example:
  maripist send --persona dr-calm "I had a rough day"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

// personasCmd lists the configured personas
var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List configured personas",
	RunE:  listPersonas,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Maripist home directory (default: ~/.maripist)")
	rootCmd.PersistentFlags().StringVar(&rosterPath, "personas", "", "Path to personas.yaml (default: <home>/personas.yaml)")

	sendCmd.Flags().StringVar(&personaFlag, "persona", "", "Persona id or name (required)")
	sendCmd.MarkFlagRequired("persona")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(personasCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// engine bundles the wired subsystems behind one construction path shared
// by the interactive view and the one-shot commands.
type engine struct {
	cfg          *config.UserConfig
	watcher      *config.Watcher
	store        *store.MessageStore
	orchestrator *session.Orchestrator
	personas     []persona.Persona
	rosterPath   string
}

func resolveHome() string {
	if homeDir != "" {
		return homeDir
	}
	return config.DefaultHome()
}

func resolveRoster(home string) string {
	if rosterPath != "" {
		return rosterPath
	}
	return filepath.Join(home, "personas.yaml")
}

// buildEngine wires config, logging, persistence, the completion client and
// the orchestrator. The caller owns shutdown via engine.close.
func buildEngine() (*engine, error) {
	home := resolveHome()

	if err := logging.Initialize(home); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	configPath := filepath.Join(home, "config.json")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	watcher, err := config.NewWatcher(configPath, cfg, nil)
	if err != nil {
		logging.Get(logging.CategoryConfig).Warn("Config watcher unavailable: %v", err)
		watcher = nil
	} else if err := watcher.Start(); err != nil {
		logging.Get(logging.CategoryConfig).Warn("Config watcher failed to start: %v", err)
		watcher = nil
	}

	roster := resolveRoster(home)
	personas, err := persona.LoadRoster(roster)
	if err != nil {
		return nil, err
	}
	if len(personas) == 0 {
		return nil, fmt.Errorf("no personas configured in %s", roster)
	}

	// The client follows config.json: watcher reloads surface here, so a
	// provider or model edit takes effect on the next send.
	currentCfg := func() *config.UserConfig { return cfg }
	if watcher != nil {
		currentCfg = watcher.Current
	}
	client, err := newDynamicClient(currentCfg, cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.NewMessageStore(cfg.GetStorePath())
	if err != nil {
		return nil, err
	}

	orch := session.NewOrchestrator(st, client, newSpeaker(cfg), cfg.GetUserID())

	return &engine{
		cfg:          cfg,
		watcher:      watcher,
		store:        st,
		orchestrator: orch,
		personas:     personas,
		rosterPath:   roster,
	}, nil
}

// reloadPersona re-reads the roster so personality edits made between sends
// take effect on the next send. The last known record is kept when the
// roster is unreadable or the persona has been removed from it.
func (e *engine) reloadPersona(p persona.Persona) persona.Persona {
	personas, err := persona.LoadRoster(e.rosterPath)
	if err != nil {
		logging.Get(logging.CategoryConfig).Warn("Roster reload failed: %v", err)
		return p
	}
	e.personas = personas
	for _, np := range personas {
		if np.ID == p.ID {
			return np
		}
	}
	return p
}

func (e *engine) close() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	logging.Close()
}

// findPersona matches by id first, then by case-insensitive name.
func (e *engine) findPersona(key string) (persona.Persona, bool) {
	for _, p := range e.personas {
		if p.ID == key {
			return p, true
		}
	}
	for _, p := range e.personas {
		if strings.EqualFold(p.Name, key) {
			return p, true
		}
	}
	return persona.Persona{}, false
}

// runSend executes one send cycle and prints the resulting turns.
func runSend(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	p, ok := eng.findPersona(personaFlag)
	if !ok {
		return fmt.Errorf("unknown persona %q (try 'maripist personas')", personaFlag)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	text := strings.Join(args, " ")
	logger.Info("Sending message", zap.String("persona", p.ID), zap.Int("len", len(text)))

	if err := eng.orchestrator.Send(ctx, p, text); err != nil {
		return err
	}

	seq, _ := eng.orchestrator.History(p.ID)
	for _, m := range tailTurns(seq, 2) {
		printTurn(p, m)
	}
	return nil
}

func listPersonas(cmd *cobra.Command, args []string) error {
	personas, err := persona.LoadRoster(resolveRoster(resolveHome()))
	if err != nil {
		return err
	}
	if len(personas) == 0 {
		fmt.Println("No personas configured.")
		return nil
	}
	for _, p := range personas {
		fmt.Printf("%-20s %-24s personality=%.2f\n", p.ID, p.Name, p.Personality)
	}
	return nil
}

// tailTurns returns the last n turns of a sequence.
func tailTurns(seq []session.Message, n int) []session.Message {
	if len(seq) <= n {
		return seq
	}
	return seq[len(seq)-n:]
}
