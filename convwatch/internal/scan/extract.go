package scan

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
	"github.com/hazyhaar/convwatch/convwatch/internal/dom"
	"github.com/hazyhaar/convwatch/convwatch/internal/fingerprint"
)

// DOM contract consumed from the host page.
const (
	AttrAuthorRole = "data-message-author-role"
	AttrTestID     = "data-testid"
	AttrIdentity   = "id"

	labelSelector = "h6.sr-only, .sr-only"

	// basisTextLen bounds the text used in an identity basis so trailing
	// edits (streaming output) do not change it.
	basisTextLen = 200
)

var (
	turnNumberRe = regexp.MustCompile(`conversation-turn-(\d+)`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// Extractor classifies turns. AssistantName is the product name the page
// uses in labels such as "<name> said:" (lowercase). Default: "chatgpt".
type Extractor struct {
	AssistantName string
}

func (x Extractor) assistant() string {
	if x.AssistantName == "" {
		return "chatgpt"
	}
	return strings.ToLower(x.AssistantName)
}

// Role resolves the author of a turn. Each signal is tried in order and the
// first that answers wins, so a stronger signal always shadows a weaker one:
//
//  1. author-role marker on the element
//  2. author-role marker on a descendant
//  3. accessibility label ("you" / assistant name)
//  4. visible "You said:" / "<assistant> said:" prefix
//  5. turn number in data-testid, even = user
//  6. position parity, even = user
//
// Markers with values other than user/assistant end the cascade as unknown.
func (x Extractor) Role(el dom.Element, index int) conversation.Role {
	if v, ok := el.Attr(AttrAuthorRole); ok && v != "" {
		return conversation.ParseRole(v)
	}

	if child := el.Query("[" + AttrAuthorRole + "]"); child != nil {
		if v, ok := child.Attr(AttrAuthorRole); ok && v != "" {
			return conversation.ParseRole(v)
		}
	}

	name := x.assistant()

	if sr := el.Query(labelSelector); sr != nil {
		label := strings.ToLower(sr.Text())
		if strings.Contains(label, "you") {
			return conversation.RoleUser
		}
		if strings.Contains(label, name) || strings.Contains(label, "assistant") {
			return conversation.RoleAssistant
		}
	}

	txt := strings.ToLower(el.Text())
	if saidBy(txt, "you said:") {
		return conversation.RoleUser
	}
	if saidBy(txt, name+" said:") {
		return conversation.RoleAssistant
	}

	if tid, ok := el.Attr(AttrTestID); ok {
		if m := turnNumberRe.FindStringSubmatch(tid); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return parity(n)
			}
		}
	}

	if index >= 0 {
		return parity(index)
	}
	return conversation.RoleUnknown
}

func saidBy(txt, prefix string) bool {
	return strings.HasPrefix(txt, prefix) || strings.Contains(txt, "\n"+prefix)
}

func parity(n int) conversation.Role {
	if n%2 == 0 {
		return conversation.RoleUser
	}
	return conversation.RoleAssistant
}

// Text returns the normalised visible text of a turn: runs of three or more
// newlines collapse to two, surrounding whitespace is trimmed.
func Text(el dom.Element) string {
	return strings.TrimSpace(newlineRunRe.ReplaceAllString(el.Text(), "\n\n"))
}

// EnsureMessageID returns the identity tag already written on el, or
// synthesises one and writes it back so later scans of the same node
// return the same id. The index is always part of the basis, so identical
// turns at different positions diverge.
func EnsureMessageID(el dom.Element, index int, role conversation.Role, text string) string {
	if id, ok := el.Attr(AttrIdentity); ok && strings.HasPrefix(id, conversation.MsgIDPrefix) {
		return id
	}

	var basis string
	if tid, _ := el.Attr(AttrTestID); tid != "" {
		basis = tid + "|" + string(role) + "|" + strconv.Itoa(index)
	} else {
		basis = string(role) + "|" + strconv.Itoa(index) + "|" + truncate(text, basisTextLen)
	}

	id := conversation.MsgIDPrefix + fingerprint.Sum(basis)
	el.SetAttr(AttrIdentity, id)
	return id
}

// truncate returns the first n runes of s.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
