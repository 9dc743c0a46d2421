package main

import (
	"context"
	"sync"

	"maripist/internal/completion"
	"maripist/internal/config"
	"maripist/internal/logging"
)

// dynamicClient wraps a completion client and rebuilds it whenever the
// watched config changes, so provider, key and model edits take effect on
// the next send without a restart.
type dynamicClient struct {
	mu      sync.Mutex
	current func() *config.UserConfig
	cfg     *config.UserConfig
	client  completion.Client
}

// newDynamicClient builds the initial client from initial; current supplies
// the most recently loaded config on every send.
func newDynamicClient(current func() *config.UserConfig, initial *config.UserConfig) (*dynamicClient, error) {
	client, err := completion.NewClientFromConfig(initial)
	if err != nil {
		return nil, err
	}
	return &dynamicClient{current: current, cfg: initial, client: client}, nil
}

// refresh rebuilds the wrapped client when the config has been reloaded
// since the last build. The previous client is kept when the new config is
// unusable. Caller holds mu.
func (d *dynamicClient) refresh() {
	cfg := d.current()
	if cfg == d.cfg {
		return
	}
	client, err := completion.NewClientFromConfig(cfg)
	if err != nil {
		logging.Get(logging.CategoryConfig).Warn("Completion client rebuild failed, keeping previous: %v", err)
		d.cfg = cfg
		return
	}
	d.cfg = cfg
	d.client = client
	logging.Get(logging.CategoryConfig).Info("Completion client rebuilt after config change")
}

func (d *dynamicClient) Complete(ctx context.Context, transcript []completion.Turn, personality float64) (string, error) {
	d.mu.Lock()
	d.refresh()
	client := d.client
	d.mu.Unlock()

	return client.Complete(ctx, transcript, personality)
}
