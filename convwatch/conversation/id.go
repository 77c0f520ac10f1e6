package conversation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/hazyhaar/convwatch/convwatch/internal/fingerprint"
)

var convPathRe = regexp.MustCompile(`/c/([^/?#]+)`)

// ConversationID derives the conversation identity from a page URL: the
// segment after "/c/" (nested "/g/<gpt>/c/<id>" included). Pages without
// one are keyed by a fingerprint of their path.
func ConversationID(u *url.URL) string {
	if u == nil {
		return fingerprint.Sum("")
	}
	if m := convPathRe.FindStringSubmatch(u.EscapedPath()); m != nil {
		return m[1]
	}
	return fingerprint.Sum(u.EscapedPath())
}

// Key returns the storage key for a conversation.
func Key(convID string) string {
	return KeyPrefix + convID
}

// PageURL strips the fragment from a page URL.
func PageURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// MsgIDFromFragment extracts the message identity from a "#msg=<id>" deep
// link. The fragment may be passed with or without its leading '#'.
func MsgIDFromFragment(fragment string) (string, bool) {
	fragment = strings.TrimPrefix(fragment, "#")
	i := strings.Index(fragment, "msg=")
	if i < 0 {
		return "", false
	}
	raw := fragment[i+len("msg="):]
	if j := strings.IndexByte(raw, '&'); j >= 0 {
		raw = raw[:j]
	}
	if raw == "" {
		return "", false
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	return id, true
}

// Fragment renders the deep-link fragment for a message, without '#'.
// The id is component-escaped so '&', '=' and '#' survive the round trip
// through MsgIDFromFragment.
func Fragment(msgID string) string {
	return "msg=" + strings.ReplaceAll(url.QueryEscape(msgID), "+", "%20")
}
