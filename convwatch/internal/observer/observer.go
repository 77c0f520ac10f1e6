// Package observer watches a live conversation page for DOM changes and
// fragment changes. It combines a page binding with an injected
// MutationObserver and debounces bursts before triggering a scan.
package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

//go:embed observer.js
var observerJS string

// BindingName is the page binding the injected script reports through.
const BindingName = "__convwatch_binding"

// Page is the live page capability the observer needs. browser.Tab
// implements it.
type Page interface {
	Binding(name string) error
	Inject(script string) error
	ListenBinding(ctx context.Context, name string, fn func(payload string))
}

// Config for creating an Observer.
type Config struct {
	Page Page
	// DebounceWindow is the quiet period before OnChange fires. Default: 250ms.
	DebounceWindow time.Duration
	// OnChange runs after a burst of mutations settles. It runs on the
	// observer goroutine; the next burst is not processed until it returns.
	OnChange func(ctx context.Context)
	// OnFragment receives the new location fragment on hashchange.
	OnFragment func(ctx context.Context, fragment string)
	Logger     *slog.Logger
}

// Observer reports page changes for a single tab.
type Observer struct {
	cfg    Config
	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type event struct {
	Kind string `json:"kind"`
	Hash string `json:"hash,omitempty"`
	URL  string `json:"url,omitempty"`
}

const (
	kindMutation = "mutation"
	kindHash     = "hash"
	kindNavigate = "navigate"
)

// New creates an Observer.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Observer{cfg: cfg, events: make(chan event, 256)}
}

// Start registers the binding, injects the page script and runs the event
// loop until ctx is done or Stop is called.
func (o *Observer) Start(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	if err := o.cfg.Page.Binding(BindingName); err != nil {
		o.cfg.Logger.Warn("observer: addBinding failed (may already exist)", "error", err)
	}

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		o.cfg.Page.ListenBinding(o.ctx, BindingName, o.receive)
	}()
	go func() {
		defer o.wg.Done()
		o.loop()
	}()

	if err := o.cfg.Page.Inject(observerJS); err != nil {
		o.Stop()
		return fmt.Errorf("observer: inject: %w", err)
	}
	o.cfg.Logger.Debug("observer: started")
	return nil
}

// Stop ends observation. Pending debounced changes are dropped.
func (o *Observer) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// receive parses one binding payload. Unknown payloads are dropped.
func (o *Observer) receive(payload string) {
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		o.cfg.Logger.Debug("observer: bad binding payload", "error", err)
		return
	}
	select {
	case o.events <- ev:
	case <-o.ctx.Done():
	}
}

func (o *Observer) loop() {
	deb := newDebouncer(o.cfg.DebounceWindow, func(n int) {
		o.cfg.Logger.Debug("observer: change settled", "events", n)
		if o.cfg.OnChange != nil {
			o.cfg.OnChange(o.ctx)
		}
	})
	defer deb.stop()

	for {
		select {
		case <-o.ctx.Done():
			return

		case ev := <-o.events:
			switch ev.Kind {
			case kindMutation:
				deb.add()
			case kindNavigate:
				o.cfg.Logger.Debug("observer: navigation", "url", ev.URL)
				deb.add()
			case kindHash:
				if o.cfg.OnFragment != nil {
					o.cfg.OnFragment(o.ctx, ev.Hash)
				}
			}

		case <-deb.timerC():
			deb.flush()
		}
	}
}
