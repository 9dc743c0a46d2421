package session

import "sync"

// HistoryCache maps persona ids to their ordered message sequences.
// Entries are populated once per persona per running session and never
// evicted. Writes always replace the full sequence for a persona, so a
// reader always observes a prefix-consistent, fully-ordered view.
type HistoryCache struct {
	mu sync.RWMutex
	m  map[string][]Message
}

// NewHistoryCache creates an empty cache.
func NewHistoryCache() *HistoryCache {
	return &HistoryCache{m: make(map[string][]Message)}
}

// Get returns a copy of the cached sequence for a persona, if present.
func (c *HistoryCache) Get(personaID string) ([]Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seq, ok := c.m[personaID]
	if !ok {
		return nil, false
	}
	out := make([]Message, len(seq))
	copy(out, seq)
	return out, true
}

// Set replaces the full sequence for a persona.
func (c *HistoryCache) Set(personaID string, seq []Message) {
	stored := make([]Message, len(seq))
	copy(stored, seq)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[personaID] = stored
}
