// Package conversation defines the structured types convwatch persists and
// emits. Any consumer (panel client, MCP agent, webhook receiver) imports
// this package to read snapshots and update notifications.
package conversation

import "sort"

// Role is the author classification of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleUnknown   Role = "unknown"
)

// ParseRole maps a raw author marker to a Role. Unrecognised markers
// (system, tool, ...) become RoleUnknown.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleUser:
		return RoleUser
	case RoleAssistant:
		return RoleAssistant
	}
	return RoleUnknown
}

const (
	// MsgIDPrefix marks identities assigned by convwatch.
	MsgIDPrefix = "msg-"
	// PreviewLen is the preview truncation, in runes.
	PreviewLen = 220
	// KeyPrefix prefixes every persisted snapshot key.
	KeyPrefix = "conv:"
)

// MessageItem is one captured turn.
type MessageItem struct {
	MsgID   string `json:"msgId"`
	Role    Role   `json:"role"`
	Index   int    `json:"index"`   // document position at scan time, not an identity
	Preview string `json:"preview"` // first PreviewLen runes of the normalised text
	Hash    string `json:"hash"`    // fingerprint of the full normalised text
	SeenAt  int64  `json:"seenAt"`  // epoch milliseconds
}

// Snapshot is the merged record of every turn observed for a conversation.
// Items hold at most one entry per MsgID, sorted ascending by Index.
type Snapshot struct {
	ConvID    string        `json:"convId"`
	URL       string        `json:"url"`
	UpdatedAt int64         `json:"updatedAt"` // epoch milliseconds
	Items     []MessageItem `json:"items"`
}

// SortItems orders items ascending by Index, keeping the relative order of
// equal indices.
func SortItems(items []MessageItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })
}

// Summary is a lightweight listing row for a stored snapshot.
type Summary struct {
	ConvID    string `json:"convId"`
	URL       string `json:"url"`
	UpdatedAt int64  `json:"updatedAt"`
	Items     int    `json:"items"`
}

// UpdateType is the notification kind emitted after a scan persists.
const UpdateType = "CONV_UPDATED"

// Update announces that a conversation snapshot changed. Delivery is
// best-effort and fire-and-forget.
type Update struct {
	ID        string `json:"id"` // UUIDv7
	Type      string `json:"type"`
	ConvID    string `json:"convId"`
	Items     int    `json:"items"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// CommandType names an inbound controller command.
type CommandType string

const (
	CommandRescan CommandType = "RESCAN"
	CommandFocus  CommandType = "FOCUS_MSG"
)

// Command is sent by a panel or agent to the page observer. PageID or
// ConvID selects the target page when several are observed.
type Command struct {
	Type   CommandType `json:"type"`
	MsgID  string      `json:"msgId,omitempty"`
	Index  *int        `json:"index,omitempty"`
	PageID string      `json:"pageId,omitempty"`
	ConvID string      `json:"convId,omitempty"`
}

// Response answers a Command.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
