// Package focus brings a captured message into view in the host page and
// flashes a highlight on it, resolving stale identities by position.
package focus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
	"github.com/hazyhaar/convwatch/convwatch/internal/dom"
	"github.com/hazyhaar/convwatch/convwatch/internal/scan"
)

// Scanner refreshes identities before a retry.
type Scanner interface {
	ScanAndPersist(ctx context.Context) (scan.Result, error)
}

// Config for creating a Resolver.
type Config struct {
	Document  dom.Document
	Scanner   Scanner
	Extractor scan.Extractor
	// Highlight is how long the highlight class stays on. Default: 2s.
	Highlight time.Duration
	// HighlightClass is added to the focused element. Default: "oai-graph-focus".
	HighlightClass string
	// HashDelay is the wait before acting on a deep link. Default: 200ms.
	HashDelay time.Duration
	// RetryDelay is the wait between a rescan and the retry. Default: 300ms.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.Highlight <= 0 {
		c.Highlight = 2 * time.Second
	}
	if c.HighlightClass == "" {
		c.HighlightClass = "oai-graph-focus"
	}
	if c.HashDelay <= 0 {
		c.HashDelay = 200 * time.Millisecond
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 300 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Resolver focuses messages. Delayed work (highlight removal, rescan and
// retry) runs in the background until Close.
type Resolver struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Focus tries, in order: the element carrying msgID; the turn at index
// (assigning it an identity if needed); and finally a background rescan
// followed by one retry on msgID. It reports only the synchronous outcome.
func (r *Resolver) Focus(msgID string, index *int) bool {
	if r.focusElement(msgID) {
		return true
	}

	if index != nil && *index >= 0 {
		turns := scan.Locate(r.cfg.Document)
		if i := *index; i < len(turns) {
			el := turns[i]
			text := scan.Text(el)
			role := r.cfg.Extractor.Role(el, i)
			id := scan.EnsureMessageID(el, i, role, text)
			if r.focusElement(id) {
				r.cfg.Logger.Debug("focus: resolved by index", "msg_id", msgID, "index", i, "resolved", id)
				return true
			}
		}
	}

	r.later(0, func(ctx context.Context) { r.rescanAndRetry(ctx, msgID) })
	return false
}

// FocusFromFragment handles a "msg=<id>" deep link: after HashDelay it
// focuses the message, rescanning and retrying once when it is absent.
// Fragments without a message reference are ignored.
func (r *Resolver) FocusFromFragment(fragment string) {
	msgID, ok := conversation.MsgIDFromFragment(fragment)
	if !ok {
		return
	}
	r.later(r.cfg.HashDelay, func(ctx context.Context) {
		if !r.focusElement(msgID) {
			r.rescanAndRetry(ctx, msgID)
		}
	})
}

// Wait blocks until all pending background work has finished.
func (r *Resolver) Wait() { r.wg.Wait() }

// Close cancels pending background work and waits for it.
func (r *Resolver) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Resolver) focusElement(msgID string) bool {
	if msgID == "" {
		return false
	}
	el := r.cfg.Document.ByID(msgID)
	if el == nil {
		return false
	}
	el.ScrollIntoView()
	el.AddClass(r.cfg.HighlightClass)

	// Removal runs even after Close so no element keeps the class.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		wait(r.ctx, r.cfg.Highlight)
		el.RemoveClass(r.cfg.HighlightClass)
	}()
	return true
}

func (r *Resolver) rescanAndRetry(ctx context.Context, msgID string) {
	if r.cfg.Scanner != nil {
		if _, err := r.cfg.Scanner.ScanAndPersist(ctx); err != nil {
			r.cfg.Logger.Warn("focus: rescan failed", "msg_id", msgID, "error", err)
		}
	}
	if !wait(ctx, r.cfg.RetryDelay) {
		return
	}
	if !r.focusElement(msgID) {
		r.cfg.Logger.Debug("focus: message not found", "msg_id", msgID)
	}
}

// later runs fn after d in the background unless the Resolver is closed
// first.
func (r *Resolver) later(d time.Duration, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if wait(r.ctx, d) {
			fn(r.ctx)
		}
	}()
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
