// Package dom abstracts the host page as external mutable state behind a
// narrow query/mutate capability, so turn location, extraction and focus
// logic run the same against a live Chrome tab or a parsed HTML tree.
//
// Implementations treat lookup failures as absence: a missing element is
// nil, a missing attribute is ("", false). Nothing here returns an error;
// backends log transport problems and degrade to empty results.
package dom

import "net/url"

// Element is one node of the host document.
type Element interface {
	// Attr returns an attribute value and whether it is present.
	Attr(name string) (string, bool)
	// SetAttr writes an attribute onto the node.
	SetAttr(name, value string)
	// Query returns the first descendant matching a CSS selector, or nil.
	Query(selector string) Element
	// Text returns the rendered text of the subtree (innerText).
	Text() string
	// ScrollIntoView centres the element in the viewport.
	ScrollIntoView()
	AddClass(class string)
	RemoveClass(class string)
}

// Document is the host page.
type Document interface {
	// QueryAll returns every element matching a CSS selector in document order.
	QueryAll(selector string) []Element
	// ByID returns the element whose id attribute equals id, or nil.
	ByID(id string) Element
	// URL returns the current page location.
	URL() *url.URL
	// SetFragment replaces the location fragment without navigating.
	SetFragment(fragment string)
}

// Viewport exposes the page scroll position.
type Viewport interface {
	ScrollY() float64
	ScrollBy(dy float64)
	ScrollTo(y float64)
	InnerHeight() float64
}
