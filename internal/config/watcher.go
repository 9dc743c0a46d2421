package config

import (
	"path/filepath"
	"sync"
	"time"

	"maripist/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches config.json for changes and reloads it.
// Edits made while a session is running (provider switch, voice settings)
// take effect on the next send without a restart.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	configPath  string
	current     *UserConfig
	onReload    func(*UserConfig)
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a Watcher for the given config path.
// onReload is invoked with the freshly-loaded config after every change;
// it may be nil.
func NewWatcher(configPath string, initial *UserConfig, onReload func(*UserConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fw,
		configPath:  configPath,
		current:     initial,
		onReload:    onReload,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory.
// Non-blocking; the watch loop runs in a goroutine.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory: editors replace the file, which would
	// invalidate a direct file watch.
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		// The loop never started; a later Stop must not wait for it.
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.loop()
	return nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *UserConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if w.debounced(event.Name) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryConfig).Warn("Watcher error: %v", err)
		}
	}
}

// debounced reports whether an event for path arrived inside the debounce window.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.debounceMap[path]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.debounceMap[path] = now
	return false
}

func (w *Watcher) reload() {
	cfg, err := Load(w.configPath)
	if err != nil {
		logging.Get(logging.CategoryConfig).Warn("Config reload failed: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	cb := w.onReload
	w.mu.Unlock()

	if err := logging.ReloadConfig(); err != nil {
		logging.Get(logging.CategoryConfig).Warn("Logging config reload failed: %v", err)
	}

	logging.Get(logging.CategoryConfig).Info("Config reloaded from %s", w.configPath)
	if cb != nil {
		cb(cfg)
	}
}
