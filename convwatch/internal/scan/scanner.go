package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
	"github.com/hazyhaar/convwatch/convwatch/internal/dom"
	"github.com/hazyhaar/convwatch/convwatch/internal/fingerprint"
	"github.com/hazyhaar/convwatch/idgen"
)

// minTextLen is the shortest turn text (in runes) treated as content.
// Shorter turns are structural noise: spacers, lone icons, emoji.
const minTextLen = 2

// Persister merges a candidate batch into the stored snapshot.
type Persister interface {
	MergeAndSave(ctx context.Context, convID, pageURL string, items []conversation.MessageItem) (*conversation.Snapshot, error)
}

// Notifier delivers CONV_UPDATED notifications. SendUpdate is called on
// the scanning goroutine; implementations that talk to the network should
// queue (see sink.Async).
type Notifier interface {
	SendUpdate(ctx context.Context, u conversation.Update) error
}

// Recorder receives scan metrics.
type Recorder interface {
	RecordSimple(name string, value float64, unit string)
}

// Config for creating a Scanner.
type Config struct {
	Document  dom.Document
	Extractor Extractor
	Store     Persister
	Notifier  Notifier // optional
	Metrics   Recorder // optional
	Logger    *slog.Logger
	Now       func() time.Time // default time.Now
}

// Result describes one ScanAndPersist call.
type Result struct {
	Skipped  bool // another scan was in flight
	Turns    int  // elements located
	Items    int  // candidate items submitted
	Snapshot *conversation.Snapshot
}

// Scanner runs the locate → extract → merge → persist → notify pipeline.
// It is single-flight: a call made while another is running returns
// immediately with Result.Skipped set. Suppressed calls are not queued;
// callers coalesce bursts upstream (see the observer debouncer).
type Scanner struct {
	doc     dom.Document
	ext     Extractor
	store   Persister
	notify  Notifier
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time

	running atomic.Bool
}

// New creates a Scanner.
func New(cfg Config) *Scanner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scanner{
		doc:     cfg.Document,
		ext:     cfg.Extractor,
		store:   cfg.Store,
		notify:  cfg.Notifier,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

// Document returns the page being scanned.
func (s *Scanner) Document() dom.Document { return s.doc }

// Extractor returns the role extractor in use.
func (s *Scanner) Extractor() Extractor { return s.ext }

// ScanAndPersist scans every visible turn and merges the result into the
// conversation's stored snapshot. When no turn is located the store is
// left untouched. Only persistence errors are returned; notification
// failures are logged and dropped.
//
// The single-flight guard covers locate, merge and persist only. The
// update is announced after the guard is released, so a slow notifier
// never causes later scans to be skipped.
func (s *Scanner) ScanAndPersist(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{Skipped: true}, nil
	}
	res, err := s.persist(ctx)
	if err == nil && res.Snapshot != nil {
		s.announce(ctx, res.Snapshot)
	}
	return res, err
}

func (s *Scanner) persist(ctx context.Context) (Result, error) {
	defer s.running.Store(false)

	start := s.now()
	turns := Locate(s.doc)
	if len(turns) == 0 {
		s.logger.Debug("scan: no turns located")
		return Result{}, nil
	}

	items := s.Collect(turns)

	loc := s.doc.URL()
	convID := conversation.ConversationID(loc)
	snap, err := s.store.MergeAndSave(ctx, convID, conversation.PageURL(loc), items)
	if err != nil {
		return Result{Turns: len(turns), Items: len(items)}, fmt.Errorf("scan: persist %s: %w", convID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordSimple("scan_items", float64(len(items)), "count")
		s.metrics.RecordSimple("scan_duration_ms", float64(s.now().Sub(start).Milliseconds()), "milliseconds")
	}
	s.logger.Debug("scan: persisted",
		"conv_id", convID, "turns", len(turns), "items", len(items), "total", len(snap.Items))

	return Result{Turns: len(turns), Items: len(items), Snapshot: snap}, nil
}

// Collect builds candidate items for the located turns. Turn positions are
// the indices in turns, including skipped ones.
func (s *Scanner) Collect(turns []dom.Element) []conversation.MessageItem {
	seenAt := s.now().UnixMilli()
	items := make([]conversation.MessageItem, 0, len(turns))
	for i, el := range turns {
		text := Text(el)
		if utf8.RuneCountInString(text) < minTextLen {
			continue
		}
		role := s.ext.Role(el, i)
		items = append(items, conversation.MessageItem{
			MsgID:   EnsureMessageID(el, i, role, text),
			Role:    role,
			Index:   i,
			Preview: truncate(text, conversation.PreviewLen),
			Hash:    fingerprint.Sum(text),
			SeenAt:  seenAt,
		})
	}
	return items
}

func (s *Scanner) announce(ctx context.Context, snap *conversation.Snapshot) {
	if s.notify == nil {
		return
	}
	u := conversation.Update{
		ID:        idgen.New(),
		Type:      conversation.UpdateType,
		ConvID:    snap.ConvID,
		Items:     len(snap.Items),
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.notify.SendUpdate(ctx, u); err != nil {
		s.logger.Debug("scan: update notification dropped", "conv_id", snap.ConvID, "error", err)
	}
}
