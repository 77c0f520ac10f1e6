package convwatch

import (
	"log/slog"

	"github.com/hazyhaar/convwatch/convwatch/internal/sink"
	"github.com/hazyhaar/convwatch/horosafe"
)

// Sink is the output interface for update notifications.
type Sink = sink.Sink

// UpdateFunc is called for each update by a callback sink.
type UpdateFunc = sink.UpdateFunc

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink() Sink {
	return sink.NewStdout(nil)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink.
func NewCallbackSink(fn UpdateFunc) Sink {
	return sink.NewCallback(fn)
}

// SinksFromConfig builds the sinks listed in the configuration. Unknown
// types are logged and skipped.
func SinksFromConfig(cfgs []SinkConfig, logger *slog.Logger) []Sink {
	if logger == nil {
		logger = slog.Default()
	}
	var out []Sink
	for _, sc := range cfgs {
		switch sc.Type {
		case "stdout":
			out = append(out, NewStdoutSink())
		case "webhook":
			if err := horosafe.ValidateURL(sc.URL, sc.AllowPrivate); err != nil {
				logger.Warn("convwatch: webhook sink refused", "url", sc.URL, "error", err)
				continue
			}
			out = append(out, NewWebhookSink(sc.URL, logger))
		default:
			logger.Warn("convwatch: unknown sink type", "type", sc.Type)
		}
	}
	return out
}
