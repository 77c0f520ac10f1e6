// Package sink defines output backends for conversation update
// notifications.
package sink

import (
	"context"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
)

// Sink is the output interface. Implementations deliver CONV_UPDATED
// notifications to different backends (stdout, webhook, websocket panels,
// in-process callback).
type Sink interface {
	SendUpdate(ctx context.Context, u conversation.Update) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
