package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/convwatch/convwatch/internal/dom"
)

// Tab is a conversation page in Chrome. It implements dom.Document and
// dom.Viewport over CDP; failed calls are logged at debug and read as
// absence, since the page mutates under us constantly.
type Tab struct {
	Page   *rod.Page
	PageID string
	logger *slog.Logger
	router *rod.HijackRouter
}

var (
	_ dom.Document = (*Tab)(nil)
	_ dom.Viewport = (*Tab)(nil)
)

// OpenTab creates a stealth tab, applies resource blocking and navigates to
// pageURL. The returned tab is bound to ctx.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{PageID: pageID, logger: mgr.cfg.Logger}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		t.logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	t.Page = page.Context(ctx)
	return t, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		_ = t.router.Stop()
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// QueryAll implements dom.Document.
func (t *Tab) QueryAll(selector string) []dom.Element {
	els, err := t.Page.Elements(selector)
	if err != nil {
		t.logger.Debug("browser: query failed", "selector", selector, "error", err)
		return nil
	}
	return t.wrap(els)
}

// ByID implements dom.Document.
func (t *Tab) ByID(id string) dom.Element {
	if id == "" {
		return nil
	}
	res, err := t.Page.ElementsByJS(rod.Eval(`(id) => {
		const el = document.getElementById(id);
		return el ? [el] : [];
	}`, id))
	if err != nil || len(res) == 0 {
		return nil
	}
	return &tabElement{tab: t, el: res[0]}
}

// URL implements dom.Document.
func (t *Tab) URL() *url.URL {
	res, err := t.Page.Eval(`() => location.href`)
	if err != nil {
		t.logger.Debug("browser: read location failed", "error", err)
		return &url.URL{}
	}
	u, err := url.Parse(res.Value.Str())
	if err != nil {
		return &url.URL{}
	}
	return u
}

// SetFragment implements dom.Document with history.replaceState, so no
// hashchange fires and no navigation happens.
func (t *Tab) SetFragment(fragment string) {
	_, err := t.Page.Eval(`(f) => history.replaceState(null, "", "#" + f)`, fragment)
	if err != nil {
		t.logger.Debug("browser: replaceState failed", "error", err)
	}
}

// ScrollY implements dom.Viewport.
func (t *Tab) ScrollY() float64 {
	return t.evalNum(`() => window.scrollY`)
}

// InnerHeight implements dom.Viewport.
func (t *Tab) InnerHeight() float64 {
	return t.evalNum(`() => window.innerHeight`)
}

// ScrollBy implements dom.Viewport.
func (t *Tab) ScrollBy(dy float64) {
	if _, err := t.Page.Eval(`(dy) => window.scrollBy(0, dy)`, dy); err != nil {
		t.logger.Debug("browser: scrollBy failed", "error", err)
	}
}

// ScrollTo implements dom.Viewport.
func (t *Tab) ScrollTo(y float64) {
	if _, err := t.Page.Eval(`(y) => window.scrollTo(0, y)`, y); err != nil {
		t.logger.Debug("browser: scrollTo failed", "error", err)
	}
}

// Binding registers a page binding the injected scripts call back into.
func (t *Tab) Binding(name string) error {
	return proto.RuntimeAddBinding{Name: name}.Call(t.Page)
}

// Inject evaluates script in the page and on every future document.
func (t *Tab) Inject(script string) error {
	if _, err := t.Page.EvalOnNewDocument(script); err != nil {
		return fmt.Errorf("browser: eval on new document: %w", err)
	}
	if _, err := t.Page.Eval(`() => {` + script + `}`); err != nil {
		return fmt.Errorf("browser: inject: %w", err)
	}
	return nil
}

func (t *Tab) evalNum(js string) float64 {
	res, err := t.Page.Eval(js)
	if err != nil {
		t.logger.Debug("browser: eval failed", "js", js, "error", err)
		return 0
	}
	return res.Value.Num()
}

func (t *Tab) wrap(els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &tabElement{tab: t, el: el})
	}
	return out
}

// tabElement is a remote DOM node handle.
type tabElement struct {
	tab *Tab
	el  *rod.Element
}

func (e *tabElement) Attr(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *tabElement) SetAttr(name, value string) {
	if _, err := e.el.Eval(`function(n, v) { this.setAttribute(n, v) }`, name, value); err != nil {
		e.tab.logger.Debug("browser: setAttribute failed", "name", name, "error", err)
	}
}

func (e *tabElement) Query(selector string) dom.Element {
	els, err := e.el.Elements(selector)
	if err != nil || len(els) == 0 {
		return nil
	}
	return &tabElement{tab: e.tab, el: els[0]}
}

func (e *tabElement) Text() string {
	res, err := e.el.Eval(`function() { return this.innerText || "" }`)
	if err != nil {
		e.tab.logger.Debug("browser: innerText failed", "error", err)
		return ""
	}
	return res.Value.Str()
}

func (e *tabElement) ScrollIntoView() {
	if _, err := e.el.Eval(`function() { this.scrollIntoView({behavior: "smooth", block: "center"}) }`); err != nil {
		e.tab.logger.Debug("browser: scrollIntoView failed", "error", err)
	}
}

func (e *tabElement) AddClass(class string) {
	if _, err := e.el.Eval(`function(c) { this.classList.add(c) }`, class); err != nil {
		e.tab.logger.Debug("browser: classList.add failed", "error", err)
	}
}

func (e *tabElement) RemoveClass(class string) {
	if _, err := e.el.Eval(`function(c) { this.classList.remove(c) }`, class); err != nil {
		e.tab.logger.Debug("browser: classList.remove failed", "error", err)
	}
}

// ListenBinding calls fn with the payload of every call to the named
// binding until ctx is done. It blocks.
func (t *Tab) ListenBinding(ctx context.Context, name string, fn func(payload string)) {
	t.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == name {
			fn(e.Payload)
		}
	})()
}
