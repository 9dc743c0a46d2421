package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	initial := &UserConfig{Provider: "openai"}
	if err := initial.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var mu sync.Mutex
	var reloaded *UserConfig
	w, err := NewWatcher(path, initial, func(cfg *UserConfig) {
		mu.Lock()
		reloaded = cfg
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	updated := &UserConfig{Provider: "gemini", GeminiAPIKey: "gm"}
	if err := updated.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		got := reloaded
		mu.Unlock()
		if got != nil {
			if got.Provider != "gemini" {
				t.Errorf("Expected reloaded provider gemini, got %s", got.Provider)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("Reload callback never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if w.Current().Provider != "gemini" {
		t.Errorf("Current() not updated, got %s", w.Current().Provider)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	initial := &UserConfig{Provider: "openai"}
	if err := initial.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fired := make(chan struct{}, 1)
	w, err := NewWatcher(path, initial, func(*UserConfig) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case <-fired:
		t.Error("Reload fired for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopAfterFailedStart(t *testing.T) {
	// Config path inside a directory that does not exist: Add fails in
	// Start, so the watch loop never runs.
	path := filepath.Join(t.TempDir(), "missing", "config.json")
	w, err := NewWatcher(path, &UserConfig{}, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Fatal("Expected Start to fail for a missing directory")
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a failed Start")
	}
}

func TestWatcherStopIdempotentWithoutStart(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "config.json"), &UserConfig{}, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	// Never started; Stop must not block or panic.
	w.Stop()
	w.Stop()
}
