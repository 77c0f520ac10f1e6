package store

// Schema is the snapshot table DDL. One row per conversation; data holds
// the JSON-encoded Snapshot, the other columns serve listing.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	conv_id    TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL,
	item_count INTEGER NOT NULL DEFAULT 0,
	data       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_updated ON snapshots(updated_at DESC);
`
