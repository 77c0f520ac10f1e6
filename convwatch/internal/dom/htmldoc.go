package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// HTMLDocument is a Document over a parsed HTML tree. It never scrolls:
// its Viewport methods report a fixed position, so a crawl over it ends
// after the first step. Safe for concurrent use.
type HTMLDocument struct {
	mu       sync.Mutex
	doc      *goquery.Document
	url      *url.URL
	scrolled []string // ids passed to ScrollIntoView, oldest first
}

// ParseHTML parses r as the page located at pageURL.
func ParseHTML(r io.Reader, pageURL string) (*HTMLDocument, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("dom: parse url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse html: %w", err)
	}
	return &HTMLDocument{doc: doc, url: u}, nil
}

// MustParseHTML is ParseHTML for literals in tests and fixtures.
func MustParseHTML(html, pageURL string) *HTMLDocument {
	d, err := ParseHTML(strings.NewReader(html), pageURL)
	if err != nil {
		panic(err)
	}
	return d
}

// QueryAll implements Document.
func (d *HTMLDocument) QueryAll(selector string) []Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(d.doc.Find(selector))
}

// ByID implements Document.
func (d *HTMLDocument) ByID(id string) Element {
	if id == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	})
	if sel.Length() == 0 {
		return nil
	}
	return &htmlElement{doc: d, sel: sel.First()}
}

// URL implements Document.
func (d *HTMLDocument) URL() *url.URL {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *d.url
	return &c
}

// SetFragment implements Document.
func (d *HTMLDocument) SetFragment(fragment string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url.Fragment = strings.TrimPrefix(fragment, "#")
	d.url.RawFragment = ""
}

// Mutate runs fn against the underlying tree under the document lock,
// standing in for the host page re-rendering.
func (d *HTMLDocument) Mutate(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc)
}

// HTML renders the current tree.
func (d *HTMLDocument) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.OuterHtml(d.doc.Selection)
}

// Scrolled returns the ids of elements scrolled into view, oldest first.
func (d *HTMLDocument) Scrolled() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.scrolled...)
}

// ScrollY implements Viewport.
func (d *HTMLDocument) ScrollY() float64 { return 0 }

// ScrollBy implements Viewport.
func (d *HTMLDocument) ScrollBy(float64) {}

// ScrollTo implements Viewport.
func (d *HTMLDocument) ScrollTo(float64) {}

// InnerHeight implements Viewport.
func (d *HTMLDocument) InnerHeight() float64 { return 0 }

func (d *HTMLDocument) wrap(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &htmlElement{doc: d, sel: s})
	})
	return out
}

// htmlElement is a single-node selection. All access goes through the
// owning document's lock.
type htmlElement struct {
	doc *HTMLDocument
	sel *goquery.Selection
}

func (e *htmlElement) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.sel.Attr(name)
}

func (e *htmlElement) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetAttr(name, value)
}

func (e *htmlElement) Query(selector string) Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	found := e.sel.Find(selector)
	if found.Length() == 0 {
		return nil
	}
	return &htmlElement{doc: e.doc, sel: found.First()}
}

func (e *htmlElement) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if len(e.sel.Nodes) == 0 {
		return ""
	}
	return InnerText(e.sel.Nodes[0])
}

func (e *htmlElement) ScrollIntoView() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	id, _ := e.sel.Attr("id")
	e.doc.scrolled = append(e.doc.scrolled, id)
}

func (e *htmlElement) AddClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.AddClass(class)
}

func (e *htmlElement) RemoveClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.RemoveClass(class)
}
