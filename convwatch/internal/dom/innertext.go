package dom

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InnerText approximates the browser's innerText for a parsed subtree:
// whitespace collapses outside <pre>, block elements start new lines,
// paragraphs and headings are separated by a blank line, <br> breaks the
// line, and script/style/template or [hidden] subtrees are skipped.
func InnerText(n *html.Node) string {
	w := &textWriter{lineBeg: true}
	w.walk(n, false)
	return w.sb.String()
}

type textWriter struct {
	sb      strings.Builder
	pending int  // newlines owed before the next text
	space   bool // collapsed whitespace owed before the next text
	lineBeg bool // nothing written on the current line yet
}

func (w *textWriter) breakLines(n int) {
	if w.sb.Len() == 0 || n == 0 {
		return
	}
	if n > w.pending {
		w.pending = n
	}
	w.space = false
}

func (w *textWriter) flush() {
	if w.pending == 0 {
		return
	}
	w.sb.WriteString(strings.Repeat("\n", w.pending))
	w.pending = 0
	w.space = false
	w.lineBeg = true
}

func (w *textWriter) writeInline(s string) {
	body := strings.Join(strings.Fields(s), " ")
	if body == "" {
		if s != "" && !w.lineBeg {
			w.space = true
		}
		return
	}
	lead := unicode.IsSpace(rune(s[0]))
	trail := unicode.IsSpace(rune(s[len(s)-1]))

	w.flush()
	if (lead || w.space) && !w.lineBeg {
		w.sb.WriteByte(' ')
	}
	w.sb.WriteString(body)
	w.space = trail
	w.lineBeg = false
}

func (w *textWriter) writePre(s string) {
	if s == "" {
		return
	}
	w.flush()
	if w.space && !w.lineBeg {
		w.sb.WriteByte(' ')
	}
	w.sb.WriteString(s)
	w.space = false
	w.lineBeg = strings.HasSuffix(s, "\n")
}

func (w *textWriter) walk(n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			w.writePre(n.Data)
		} else {
			w.writeInline(n.Data)
		}
		return
	case html.ElementNode:
		if skipped(n) {
			return
		}
		if n.DataAtom == atom.Br {
			w.flush()
			w.sb.WriteByte('\n')
			w.space = false
			w.lineBeg = true
			return
		}
	}

	gap := blockGap(n)
	w.breakLines(gap)
	inPre := pre || n.DataAtom == atom.Pre
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, inPre)
	}
	w.breakLines(gap)
}

func skipped(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "hidden" {
			return true
		}
	}
	return false
}

// blockGap returns how many newlines surround an element: 2 for
// paragraph-like blocks, 1 for other blocks, 0 for inline content.
func blockGap(n *html.Node) int {
	if n.Type != html.ElementNode {
		return 0
	}
	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return 2
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Header,
		atom.Footer, atom.Aside, atom.Nav, atom.Ul, atom.Ol, atom.Li,
		atom.Pre, atom.Blockquote, atom.Table, atom.Tr, atom.Dl, atom.Dt,
		atom.Dd, atom.Figure, atom.Figcaption, atom.Details, atom.Summary,
		atom.Hr, atom.Form:
		return 1
	}
	return 0
}
