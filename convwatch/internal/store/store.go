// Package store persists conversation snapshots in SQLite, keyed by
// "conv:<id>", and merges newly scanned items into them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
	"github.com/hazyhaar/convwatch/dbopen"
)

// Store is the snapshot store.
type Store struct {
	db     *sql.DB
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the merge policy used by MergeAndSave.
func WithPolicy(p Policy) Option { return func(s *Store) { s.policy = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New wraps an open database. The caller applies Schema (dbopen.WithSchema).
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, policy: PolicyNewest, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open opens (creating if needed) the database at path with Schema applied.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return New(db, opts...), nil
}

// DB exposes the underlying handle, shared with the metrics tables.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save writes snap under its key, replacing any previous snapshot.
func (s *Store) Save(ctx context.Context, snap *conversation.Snapshot) error {
	return save(ctx, s.db, snap)
}

// Load returns the stored snapshot, or nil, nil when none exists.
func (s *Store) Load(ctx context.Context, convID string) (*conversation.Snapshot, error) {
	return load(ctx, s.db, convID)
}

// MergeAndSave merges items into the stored snapshot for convID and writes
// the result back in one transaction. UpdatedAt is set to now.
func (s *Store) MergeAndSave(ctx context.Context, convID, pageURL string, items []conversation.MessageItem) (*conversation.Snapshot, error) {
	var out *conversation.Snapshot
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		prev, err := load(ctx, tx, convID)
		if err != nil {
			return err
		}
		var prevItems []conversation.MessageItem
		if prev != nil {
			prevItems = prev.Items
		}
		out = &conversation.Snapshot{
			ConvID:    convID,
			URL:       pageURL,
			UpdatedAt: s.now().UnixMilli(),
			Items:     MergeWith(s.policy, prevItems, items),
		}
		return save(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("store: merged", "conv_id", convID, "incoming", len(items), "total", len(out.Items))
	return out, nil
}

// List returns a summary of every stored conversation, most recently
// updated first.
func (s *Store) List(ctx context.Context) ([]conversation.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conv_id, url, updated_at, item_count FROM snapshots ORDER BY updated_at DESC, conv_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []conversation.Summary
	for rows.Next() {
		var sum conversation.Summary
		if err := rows.Scan(&sum.ConvID, &sum.URL, &sum.UpdatedAt, &sum.Items); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Search returns the items of convID whose preview matches query. Plain
// mode is a case-insensitive substring match in Index order. Fuzzy mode
// keeps items whose preview contains the query's characters in order and
// ranks them by edit distance. An empty query returns every item.
func (s *Store) Search(ctx context.Context, convID, query string, fuzzyMode bool) ([]conversation.MessageItem, error) {
	snap, err := s.Load(ctx, convID)
	if err != nil || snap == nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return snap.Items, nil
	}

	if !fuzzyMode {
		lq := strings.ToLower(q)
		var out []conversation.MessageItem
		for _, it := range snap.Items {
			if strings.Contains(strings.ToLower(it.Preview), lq) {
				out = append(out, it)
			}
		}
		return out, nil
	}

	previews := make([]string, len(snap.Items))
	for i, it := range snap.Items {
		previews[i] = it.Preview
	}
	ranks := fuzzy.RankFindNormalizedFold(q, previews)
	sort.Stable(ranks)
	out := make([]conversation.MessageItem, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, snap.Items[r.OriginalIndex])
	}
	return out, nil
}

func save(ctx context.Context, q querier, snap *conversation.Snapshot) error {
	conversation.SortItems(snap.Items)
	data, err := conversation.MarshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", snap.ConvID, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO snapshots (key, conv_id, url, updated_at, item_count, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			url = excluded.url,
			updated_at = excluded.updated_at,
			item_count = excluded.item_count,
			data = excluded.data`,
		conversation.Key(snap.ConvID), snap.ConvID, snap.URL, snap.UpdatedAt, len(snap.Items), string(data))
	if err != nil {
		return fmt.Errorf("store: save %s: %w", snap.ConvID, err)
	}
	return nil
}

func load(ctx context.Context, q querier, convID string) (*conversation.Snapshot, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE key = ?`, conversation.Key(convID)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", convID, err)
	}
	snap, err := conversation.UnmarshalSnapshot([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", convID, err)
	}
	return snap, nil
}
