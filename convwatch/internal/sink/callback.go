package sink

import (
	"context"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
)

// UpdateFunc is called for each update (in-process, zero serialisation).
type UpdateFunc func(ctx context.Context, u conversation.Update) error

// Callback delivers updates via a Go function call, for embedders running
// convwatch inside their own binary.
type Callback struct {
	fn UpdateFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn UpdateFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) SendUpdate(ctx context.Context, u conversation.Update) error {
	if c.fn != nil {
		return c.fn(ctx, u)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
