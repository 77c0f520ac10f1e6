package store

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
)

// Policy decides which entry wins when both batches carry the same MsgID.
type Policy string

const (
	// PolicyNewest always keeps the incoming entry.
	PolicyNewest Policy = "newest"
	// PolicyLongest keeps the stored entry when the incoming preview is a
	// strict prefix of it, i.e. a partially rendered re-extraction.
	PolicyLongest Policy = "longest"
)

// ParsePolicy maps a config value to a Policy. Empty means PolicyNewest.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyNewest:
		return PolicyNewest, nil
	case PolicyLongest:
		return PolicyLongest, nil
	}
	return "", fmt.Errorf("store: unknown merge policy %q", s)
}

// Merge is MergeWith(PolicyNewest, prev, next).
func Merge(prev, next []conversation.MessageItem) []conversation.MessageItem {
	return MergeWith(PolicyNewest, prev, next)
}

// MergeWith returns the keyed union of prev and next by MsgID, sorted by
// Index. Neither input is modified. Entries of prev absent from next are
// kept, so a snapshot never loses a message.
func MergeWith(policy Policy, prev, next []conversation.MessageItem) []conversation.MessageItem {
	pos := make(map[string]int, len(prev)+len(next))
	out := make([]conversation.MessageItem, 0, len(prev)+len(next))

	put := func(it conversation.MessageItem, incoming bool) {
		i, ok := pos[it.MsgID]
		if !ok {
			pos[it.MsgID] = len(out)
			out = append(out, it)
			return
		}
		if incoming && policy == PolicyLongest && truncatedOf(it, out[i]) {
			return
		}
		out[i] = it
	}
	for _, it := range prev {
		put(it, false)
	}
	for _, it := range next {
		put(it, true)
	}

	conversation.SortItems(out)
	return out
}

func truncatedOf(next, prev conversation.MessageItem) bool {
	return len(next.Preview) < len(prev.Preview) && strings.HasPrefix(prev.Preview, next.Preview)
}
