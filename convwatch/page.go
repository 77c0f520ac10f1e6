package convwatch

import (
	"context"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
	"github.com/hazyhaar/convwatch/convwatch/internal/crawl"
	"github.com/hazyhaar/convwatch/convwatch/internal/dom"
	"github.com/hazyhaar/convwatch/convwatch/internal/focus"
	"github.com/hazyhaar/convwatch/convwatch/internal/observer"
	"github.com/hazyhaar/convwatch/convwatch/internal/scan"
)

// Page is one observed conversation page with its scan, crawl and focus
// machinery.
type Page struct {
	ID string

	doc     dom.Document
	scanner *scan.Scanner
	crawler *crawl.Crawler
	focus   *focus.Resolver
	obs     *observer.Observer
	close   func() error
}

// ConvID returns the conversation currently shown by the page.
func (p *Page) ConvID() string {
	return conversation.ConversationID(p.doc.URL())
}

// URL returns the page location without its fragment.
func (p *Page) URL() string {
	return conversation.PageURL(p.doc.URL())
}

// Scan scans the visible turns and persists them.
func (p *Page) Scan(ctx context.Context) (scan.Result, error) {
	return p.scanner.ScanAndPersist(ctx)
}

// Crawl walks the conversation upward, scanning as it goes.
func (p *Page) Crawl(ctx context.Context) error {
	return p.crawler.Crawl(ctx)
}

// Focus scrolls to and highlights a message. It reports the synchronous
// outcome only.
func (p *Page) Focus(msgID string, index *int) bool {
	return p.focus.Focus(msgID, index)
}

func (p *Page) shutdown() error {
	if p.obs != nil {
		p.obs.Stop()
	}
	p.focus.Close()
	if p.close != nil {
		return p.close()
	}
	return nil
}
