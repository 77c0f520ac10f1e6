package dom

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const page = `<!DOCTYPE html>
<html><head><title>t</title><style>.x{}</style></head>
<body>
<main>
  <div data-testid="conversation-turn-1" class="turn">
    <h5 class="sr-only">You said:</h5>
    <div data-message-author-role="user"><p>Hello <b>there</b></p></div>
  </div>
  <div data-testid="conversation-turn-2" class="turn">
    <div data-message-author-role="assistant">
      <p>First paragraph.</p><p>Second<br>line.</p>
      <pre>a  b
c</pre>
      <script>ignored()</script>
      <span hidden>invisible</span>
    </div>
  </div>
</main>
</body></html>`

func testDoc(t *testing.T) *HTMLDocument {
	t.Helper()
	d, err := ParseHTML(strings.NewReader(page), "https://chatgpt.com/c/abc#msg=x")
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestHTMLDocument_QueryAllOrder(t *testing.T) {
	d := testDoc(t)
	els := d.QueryAll("[data-testid^='conversation-turn-']")
	if len(els) != 2 {
		t.Fatalf("QueryAll: got %d, want 2", len(els))
	}
	v, _ := els[0].Attr("data-testid")
	if v != "conversation-turn-1" {
		t.Errorf("first element: got %q", v)
	}
}

func TestHTMLDocument_QueryAllNoMatch(t *testing.T) {
	d := testDoc(t)
	if got := d.QueryAll("[data-nothing]"); len(got) != 0 {
		t.Errorf("QueryAll: got %d, want 0", len(got))
	}
}

func TestHTMLElement_AttrAndSetAttr(t *testing.T) {
	d := testDoc(t)
	el := d.QueryAll(".turn")[0]
	if _, ok := el.Attr("id"); ok {
		t.Fatal("id should be absent before tagging")
	}
	el.SetAttr("id", "msg-00000001")
	if got := d.ByID("msg-00000001"); got == nil {
		t.Fatal("ByID should find the tagged element")
	}
	if d.ByID("msg-missing") != nil {
		t.Error("ByID should return nil for unknown ids")
	}
}

func TestHTMLElement_Query(t *testing.T) {
	d := testDoc(t)
	el := d.QueryAll(".turn")[1]
	child := el.Query("[data-message-author-role]")
	if child == nil {
		t.Fatal("Query: got nil")
	}
	if v, _ := child.Attr("data-message-author-role"); v != "assistant" {
		t.Errorf("role: got %q", v)
	}
	if el.Query("table") != nil {
		t.Error("Query should return nil on no match")
	}
}

func TestHTMLElement_Text(t *testing.T) {
	d := testDoc(t)
	els := d.QueryAll(".turn")

	got := els[0].Text()
	if got != "You said:\n\nHello there" {
		t.Errorf("turn 1 text: got %q", got)
	}

	got = els[1].Text()
	want := "First paragraph.\n\nSecond\nline.\n\na  b\nc"
	if got != want {
		t.Errorf("turn 2 text:\n got %q\nwant %q", got, want)
	}
}

func TestHTMLElement_Classes(t *testing.T) {
	d := testDoc(t)
	el := d.QueryAll(".turn")[0]
	el.AddClass("focus")
	if len(d.QueryAll(".turn.focus")) != 1 {
		t.Fatal("AddClass: class not applied")
	}
	el.RemoveClass("focus")
	if len(d.QueryAll(".focus")) != 0 {
		t.Error("RemoveClass: class still present")
	}
}

func TestHTMLDocument_Fragment(t *testing.T) {
	d := testDoc(t)
	if d.URL().Fragment != "msg=x" {
		t.Fatalf("fragment: got %q", d.URL().Fragment)
	}
	d.SetFragment("#msg=y")
	if d.URL().Fragment != "msg=y" {
		t.Errorf("fragment after set: got %q", d.URL().Fragment)
	}
}

func TestHTMLDocument_Mutate(t *testing.T) {
	d := testDoc(t)
	d.Mutate(func(doc *goquery.Document) {
		doc.Find("main").AppendHtml(`<div class="turn" data-testid="conversation-turn-3">more</div>`)
	})
	if got := len(d.QueryAll(".turn")); got != 3 {
		t.Errorf("after mutate: got %d turns, want 3", got)
	}
}

func TestHTMLDocument_StaticViewport(t *testing.T) {
	d := testDoc(t)
	d.ScrollBy(-500)
	if d.ScrollY() != 0 {
		t.Errorf("ScrollY: got %v, want 0", d.ScrollY())
	}
}
