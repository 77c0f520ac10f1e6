// Package scan turns the host page's conversation turns into message items:
// it locates turn subtrees, classifies their author, assigns durable
// identities, and hands candidate batches to the snapshot store.
package scan

import "github.com/hazyhaar/convwatch/convwatch/internal/dom"

// Turn selectors, strongest first. The third covers layouts whose outer
// turn wrapper carries no testable marker.
var turnSelectors = []string{
	"[data-testid^='conversation-turn-']",
	"[data-testid*='conversation-turn']",
	"[" + AttrAuthorRole + "]",
}

// Locate returns the message-bearing elements in document order, using the
// first selector that matches anything. An empty result means there is
// nothing to scan.
func Locate(doc dom.Document) []dom.Element {
	for _, sel := range turnSelectors {
		if els := doc.QueryAll(sel); len(els) > 0 {
			return els
		}
	}
	return nil
}
