// Package convwatch observes chat conversation pages in Chrome and keeps a
// persistent, merged snapshot of every turn it has seen. Turns are located
// in the live DOM, classified by author, tagged with durable identities and
// merged into SQLite. Change notifications fan out to sinks (stdout,
// webhook, websocket panels, callbacks).
//
// convwatch reads the page, it does not interpret the conversation.
package convwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
	"github.com/hazyhaar/convwatch/convwatch/internal/browser"
	"github.com/hazyhaar/convwatch/convwatch/internal/config"
	"github.com/hazyhaar/convwatch/convwatch/internal/crawl"
	"github.com/hazyhaar/convwatch/convwatch/internal/dom"
	"github.com/hazyhaar/convwatch/convwatch/internal/focus"
	"github.com/hazyhaar/convwatch/convwatch/internal/observer"
	"github.com/hazyhaar/convwatch/convwatch/internal/scan"
	"github.com/hazyhaar/convwatch/convwatch/internal/sink"
	"github.com/hazyhaar/convwatch/convwatch/internal/store"
	"github.com/hazyhaar/convwatch/idgen"
	"github.com/hazyhaar/convwatch/observability"
)

// ErrNoPage is returned when a command matches no observed page.
var ErrNoPage = errors.New("convwatch: no matching page")

var newPageID = idgen.Prefixed("page_", idgen.UUIDv7())

// Watcher is the top-level orchestrator. It owns the browser, the snapshot
// store, the metrics manager and the sink router, and one Page per observed
// conversation tab.
type Watcher struct {
	cfg     *config.Config
	mgr     *browser.Manager
	store   *store.Store
	metrics *observability.MetricsManager
	notify  *sink.Async
	hub     *sink.Hub
	ext     scan.Extractor

	mu    sync.Mutex
	pages map[string]*Page
	order []string

	logger *slog.Logger
}

// New creates a Watcher from configuration, opening the snapshot database
// at cfg.DBPath. The websocket hub is always registered as a sink. Updates
// reach the sinks through a bounded queue, so scans and crawls never wait
// on delivery.
func New(cfg *config.Config, logger *slog.Logger, sinks ...sink.Sink) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()

	policy, err := store.ParsePolicy(cfg.Merge.Policy)
	if err != nil {
		return nil, fmt.Errorf("convwatch: %w", err)
	}
	st, err := store.Open(cfg.DBPath, store.WithPolicy(policy), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("convwatch: %w", err)
	}
	if err := observability.Init(st.DB()); err != nil {
		st.Close()
		return nil, fmt.Errorf("convwatch: metrics schema: %w", err)
	}

	hub := sink.NewHub(logger, cfg.HTTP.OriginPatterns...)
	router := sink.NewRouter(logger, sinks...)
	router.Add(hub)

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Mode:             browser.ParseMode(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})

	return &Watcher{
		cfg:     cfg,
		mgr:     mgr,
		store:   st,
		metrics: observability.NewMetricsManager(st.DB(), 100, 0, logger),
		notify:  sink.NewAsync(router, 256, sink.WithAsyncLogger(logger)),
		hub:     hub,
		ext:     scan.Extractor{AssistantName: cfg.Extract.AssistantName},
		pages:   make(map[string]*Page),
		logger:  logger,
	}, nil
}

// Start launches (or attaches to) the browser and observes every configured
// page. Pages that fail to open are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("convwatch: start browser: %w", err)
	}
	for _, pc := range w.cfg.Pages {
		if _, err := w.ObservePage(ctx, pc); err != nil {
			w.logger.Error("convwatch: failed to observe page", "url", pc.URL, "error", err)
		}
	}
	return nil
}

// ObservePage opens a tab on a conversation page, scans it, honours a
// "#msg=" deep link and keeps it under observation until Stop.
func (w *Watcher) ObservePage(ctx context.Context, pc config.PageConfig) (*Page, error) {
	if pc.ID == "" {
		pc.ID = newPageID()
	}
	tab, err := browser.OpenTab(ctx, w.mgr, pc.URL, pc.ID)
	if err != nil {
		return nil, fmt.Errorf("convwatch: open tab: %w", err)
	}

	p := w.newPage(pc.ID, tab, tab)
	p.close = tab.Close
	p.obs = observer.New(observer.Config{
		Page:           tab,
		DebounceWindow: w.cfg.Debounce.Window,
		OnChange:       func(ctx context.Context) { w.scanLogged(ctx, p) },
		OnFragment:     func(_ context.Context, f string) { p.focus.FocusFromFragment(f) },
		Logger:         w.logger.With("page_id", pc.ID),
	})
	if err := p.obs.Start(ctx); err != nil {
		p.obs = nil
		p.shutdown()
		return nil, fmt.Errorf("convwatch: start observer: %w", err)
	}

	w.register(p)
	w.scanLogged(ctx, p)
	p.focus.FocusFromFragment(tab.URL().EscapedFragment())

	w.logger.Info("convwatch: observing page", "id", pc.ID, "url", pc.URL, "conv_id", p.ConvID())
	return p, nil
}

// AttachDocument registers a page backed by any dom.Document, such as a
// parsed HTML file. vp may be nil when the document cannot scroll. The page
// is not observed for changes; callers drive Scan and Crawl themselves.
func (w *Watcher) AttachDocument(id string, doc dom.Document, vp dom.Viewport) *Page {
	if id == "" {
		id = newPageID()
	}
	if vp == nil {
		vp = staticViewport{}
	}
	p := w.newPage(id, doc, vp)
	w.register(p)
	return p
}

// AttachHTML parses a saved conversation page located at pageURL and
// registers it like AttachDocument. The page never scrolls.
func (w *Watcher) AttachHTML(id string, r io.Reader, pageURL string) (*Page, error) {
	doc, err := dom.ParseHTML(r, pageURL)
	if err != nil {
		return nil, fmt.Errorf("convwatch: parse html: %w", err)
	}
	return w.AttachDocument(id, doc, doc), nil
}

func (w *Watcher) newPage(id string, doc dom.Document, vp dom.Viewport) *Page {
	rec := w.metrics.With(map[string]string{"page_id": id})
	sc := scan.New(scan.Config{
		Document:  doc,
		Extractor: w.ext,
		Store:     w.store,
		Notifier:  w.notify,
		Metrics:   rec,
		Logger:    w.logger.With("page_id", id),
	})
	return &Page{
		ID:      id,
		doc:     doc,
		scanner: sc,
		crawler: crawl.New(crawl.Config{
			Scanner:        sc,
			Viewport:       vp,
			MaxSteps:       w.cfg.Crawl.MaxSteps,
			ScrollFraction: w.cfg.Crawl.ScrollFraction,
			Settle:         w.cfg.Crawl.Settle,
			Metrics:        rec,
			Logger:         w.logger,
		}),
		focus: focus.New(focus.Config{
			Document:       doc,
			Scanner:        sc,
			Extractor:      w.ext,
			Highlight:      w.cfg.Focus.Highlight,
			HighlightClass: w.cfg.Focus.HighlightClass,
			HashDelay:      w.cfg.Focus.HashDelay,
			RetryDelay:     w.cfg.Focus.RetryDelay,
			Logger:         w.logger,
		}),
	}
}

func (w *Watcher) register(p *Page) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.pages[p.ID]; ok {
		old.shutdown()
	} else {
		w.order = append(w.order, p.ID)
	}
	w.pages[p.ID] = p
}

func (w *Watcher) scanLogged(ctx context.Context, p *Page) {
	res, err := p.Scan(ctx)
	if err != nil {
		w.logger.Error("convwatch: scan failed", "page_id", p.ID, "error", err)
		return
	}
	if res.Skipped {
		w.logger.Debug("convwatch: scan skipped, one in flight", "page_id", p.ID)
	}
}

// Page returns an observed page by id.
func (w *Watcher) Page(id string) (*Page, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[id]
	return p, ok
}

// Pages returns the observed pages in registration order.
func (w *Watcher) Pages() []*Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Page, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.pages[id])
	}
	return out
}

// Store exposes the snapshot store.
func (w *Watcher) Store() *store.Store { return w.store }

// Metrics exposes the metrics manager.
func (w *Watcher) Metrics() *observability.MetricsManager { return w.metrics }

// Handle executes a controller command against the page it targets.
//
// RESCAN crawls the whole conversation and answers once the crawl ends,
// with ok=false if it failed. FOCUS_MSG records the message in the page
// fragment, starts focusing it and answers ok at once; the focus outcome
// is not reported.
func (w *Watcher) Handle(ctx context.Context, cmd conversation.Command) conversation.Response {
	p, err := w.resolve(cmd)
	if err != nil {
		return conversation.Response{Error: err.Error()}
	}

	switch cmd.Type {
	case conversation.CommandRescan:
		if err := p.Crawl(ctx); err != nil {
			w.logger.Error("convwatch: rescan failed", "page_id", p.ID, "error", err)
			return conversation.Response{Error: err.Error()}
		}
		return conversation.Response{OK: true}

	case conversation.CommandFocus:
		if cmd.MsgID == "" {
			return conversation.Response{Error: "msgId required"}
		}
		p.doc.SetFragment(conversation.Fragment(cmd.MsgID))
		ok := p.Focus(cmd.MsgID, cmd.Index)
		w.logger.Debug("convwatch: focus", "page_id", p.ID, "msg_id", cmd.MsgID, "immediate", ok)
		return conversation.Response{OK: true}
	}
	return conversation.Response{Error: fmt.Sprintf("unknown command %q", cmd.Type)}
}

// resolve picks the command target: by page id, then by the conversation
// on screen, then the only page when exactly one is observed.
func (w *Watcher) resolve(cmd conversation.Command) (*Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cmd.PageID != "" {
		if p, ok := w.pages[cmd.PageID]; ok {
			return p, nil
		}
		return nil, fmt.Errorf("%w: page %q", ErrNoPage, cmd.PageID)
	}
	if cmd.ConvID != "" {
		i := slices.IndexFunc(w.order, func(id string) bool { return w.pages[id].ConvID() == cmd.ConvID })
		if i < 0 {
			return nil, fmt.Errorf("%w: conversation %q", ErrNoPage, cmd.ConvID)
		}
		return w.pages[w.order[i]], nil
	}
	if len(w.order) == 1 {
		return w.pages[w.order[0]], nil
	}
	return nil, fmt.Errorf("%w: %d pages observed, set pageId or convId", ErrNoPage, len(w.order))
}

// Stop shuts down every page, the sinks, the metrics flush loop, the store
// and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for _, id := range w.order {
		if err := w.pages[id].shutdown(); err != nil {
			w.logger.Debug("convwatch: close page", "id", id, "error", err)
		}
		w.logger.Info("convwatch: stopped page", "id", id)
	}
	w.pages = make(map[string]*Page)
	w.order = nil
	w.mu.Unlock()

	w.notify.Close()
	w.metrics.Close()
	w.store.Close()
	w.mgr.Close()
}

type staticViewport struct{}

func (staticViewport) ScrollY() float64     { return 0 }
func (staticViewport) ScrollBy(float64)     {}
func (staticViewport) ScrollTo(float64)     {}
func (staticViewport) InnerHeight() float64 { return 0 }
