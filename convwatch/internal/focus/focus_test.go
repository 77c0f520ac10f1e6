package focus

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/convwatch/convwatch/internal/dom"
	"github.com/hazyhaar/convwatch/convwatch/internal/scan"
)

const page = `<html><body>
<div data-testid="conversation-turn-1" id="msg-first"><div data-message-author-role="user">Question one</div></div>
<div data-testid="conversation-turn-2"><div data-message-author-role="assistant">Answer one</div></div>
<div data-testid="conversation-turn-3"><div data-message-author-role="user">Question two</div></div>
</body></html>`

func newDoc() *dom.HTMLDocument {
	return dom.MustParseHTML(page, "https://chatgpt.com/c/abc")
}

type fakeScanner struct {
	calls  atomic.Int32
	onScan func()
}

func (s *fakeScanner) ScanAndPersist(context.Context) (scan.Result, error) {
	s.calls.Add(1)
	if s.onScan != nil {
		s.onScan()
	}
	return scan.Result{}, nil
}

func fast(doc dom.Document, sc Scanner) *Resolver {
	return New(Config{
		Document:   doc,
		Scanner:    sc,
		Highlight:  5 * time.Millisecond,
		HashDelay:  time.Millisecond,
		RetryDelay: time.Millisecond,
	})
}

func hasClass(el dom.Element, class string) bool {
	v, _ := el.Attr("class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func TestFocus_ByID(t *testing.T) {
	doc := newDoc()
	r := fast(doc, &fakeScanner{})
	defer r.Close()

	if !r.Focus("msg-first", nil) {
		t.Fatal("Focus: got false")
	}
	el := doc.ByID("msg-first")
	if !hasClass(el, "oai-graph-focus") {
		t.Error("highlight not applied")
	}
	if got := doc.Scrolled(); len(got) != 1 || got[0] != "msg-first" {
		t.Errorf("scrolled: %v", got)
	}

	r.Wait()
	if hasClass(el, "oai-graph-focus") {
		t.Error("highlight not removed")
	}
}

func TestFocus_IndexFallback(t *testing.T) {
	doc := newDoc()
	sc := &fakeScanner{}
	r := fast(doc, sc)
	defer r.Close()

	idx := 1
	if !r.Focus("msg-stale", &idx) {
		t.Fatal("Focus: got false, want positional fallback")
	}
	turn := doc.QueryAll("[data-testid='conversation-turn-2']")[0]
	id, _ := turn.Attr("id")
	if !strings.HasPrefix(id, "msg-") {
		t.Fatalf("identity not assigned: %q", id)
	}
	if got := doc.Scrolled(); len(got) != 1 || got[0] != id {
		t.Errorf("scrolled: %v, want [%s]", got, id)
	}
	r.Wait()
	if sc.calls.Load() != 0 {
		t.Errorf("rescans: got %d, want 0", sc.calls.Load())
	}
}

func TestFocus_IndexOutOfRange(t *testing.T) {
	doc := newDoc()
	sc := &fakeScanner{}
	r := fast(doc, sc)
	defer r.Close()

	idx := 42
	if r.Focus("msg-stale", &idx) {
		t.Fatal("Focus: got true")
	}
	r.Wait()
	if sc.calls.Load() != 1 {
		t.Errorf("rescans: got %d, want 1", sc.calls.Load())
	}
}

func TestFocus_RescanThenRetry(t *testing.T) {
	doc := newDoc()
	sc := &fakeScanner{onScan: func() {
		doc.Mutate(func(d *goquery.Document) {
			d.Find("[data-testid='conversation-turn-3']").SetAttr("id", "msg-late")
		})
	}}
	r := fast(doc, sc)
	defer r.Close()

	if r.Focus("msg-late", nil) {
		t.Fatal("Focus: synchronous result should be false")
	}
	r.Wait()
	if got := doc.Scrolled(); len(got) != 1 || got[0] != "msg-late" {
		t.Errorf("scrolled after retry: %v", got)
	}
}

func TestFocusFromFragment(t *testing.T) {
	doc := newDoc()
	sc := &fakeScanner{}
	r := fast(doc, sc)
	defer r.Close()

	r.FocusFromFragment("#msg=msg-first")
	r.Wait()
	if got := doc.Scrolled(); len(got) != 1 || got[0] != "msg-first" {
		t.Errorf("scrolled: %v", got)
	}
	if sc.calls.Load() != 0 {
		t.Errorf("rescans: got %d, want 0", sc.calls.Load())
	}
}

func TestFocusFromFragment_MissingRescans(t *testing.T) {
	doc := newDoc()
	sc := &fakeScanner{}
	r := fast(doc, sc)
	defer r.Close()

	r.FocusFromFragment("msg=msg%2Dnowhere")
	r.Wait()
	if sc.calls.Load() != 1 {
		t.Errorf("rescans: got %d, want 1", sc.calls.Load())
	}
	if got := doc.Scrolled(); len(got) != 0 {
		t.Errorf("scrolled: %v", got)
	}
}

func TestFocusFromFragment_Ignored(t *testing.T) {
	doc := newDoc()
	sc := &fakeScanner{}
	r := fast(doc, sc)
	defer r.Close()

	r.FocusFromFragment("#section-2")
	r.Wait()
	if sc.calls.Load() != 0 || len(doc.Scrolled()) != 0 {
		t.Error("non-message fragment triggered work")
	}
}

func TestClose_DropsPendingRetry(t *testing.T) {
	doc := newDoc()
	sc := &fakeScanner{}
	r := New(Config{Document: doc, Scanner: sc, HashDelay: time.Hour})
	r.FocusFromFragment("msg=msg-first")
	r.Close()
	if sc.calls.Load() != 0 || len(doc.Scrolled()) != 0 {
		t.Error("cancelled work ran")
	}
}
