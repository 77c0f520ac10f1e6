package store

import (
	"reflect"
	"testing"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
)

func item(id string, index int, preview string) conversation.MessageItem {
	return conversation.MessageItem{MsgID: id, Role: conversation.RoleUser, Index: index, Preview: preview, Hash: preview}
}

func TestMerge_Idempotent(t *testing.T) {
	s := []conversation.MessageItem{item("msg-a", 0, "a"), item("msg-b", 1, "b")}
	got := Merge(s, s)
	if !reflect.DeepEqual(got, s) {
		t.Errorf("Merge(s, s) = %+v, want %+v", got, s)
	}
}

func TestMerge_IdempotentOverlap(t *testing.T) {
	a := []conversation.MessageItem{
		item("msg-c", 4, "c"),
		item("msg-b", 3, "b before re-render"),
		item("msg-a", 0, "a"),
	}
	b := []conversation.MessageItem{
		item("msg-d", 2, "d"),
		item("msg-b", 1, "b after re-render"),
	}
	for _, p := range []Policy{PolicyNewest, PolicyLongest} {
		once := MergeWith(p, a, b)
		twice := MergeWith(p, once, b)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("%s: merge(merge(A,B),B) = %+v, want %+v", p, twice, once)
		}
		if len(once) != 4 {
			t.Errorf("%s: len = %d, want 4", p, len(once))
		}
	}

	got := Merge(a, b)
	want := []string{"msg-a", "msg-b", "msg-d", "msg-c"}
	for i, id := range want {
		if got[i].MsgID != id {
			t.Fatalf("order = %+v, want %v", got, want)
		}
	}
	if got[1].Preview != "b after re-render" || got[1].Index != 1 {
		t.Errorf("override lost: %+v", got[1])
	}
}

func TestMerge_Monotonic(t *testing.T) {
	prev := []conversation.MessageItem{item("msg-a", 0, "a"), item("msg-b", 1, "b")}
	next := []conversation.MessageItem{item("msg-c", 2, "c")}
	got := Merge(prev, next)
	if len(got) != 3 {
		t.Fatalf("len: got %d, want 3", len(got))
	}
	ids := map[string]bool{}
	for _, it := range got {
		ids[it.MsgID] = true
	}
	for _, it := range append(prev, next...) {
		if !ids[it.MsgID] {
			t.Errorf("missing %s", it.MsgID)
		}
	}
}

func TestMerge_IncomingOverrides(t *testing.T) {
	prev := []conversation.MessageItem{item("msg-a", 0, "old")}
	next := []conversation.MessageItem{item("msg-a", 0, "new")}
	got := Merge(prev, next)
	if len(got) != 1 || got[0].Preview != "new" {
		t.Errorf("got %+v, want single item with preview new", got)
	}
}

func TestMerge_SortedByIndex(t *testing.T) {
	prev := []conversation.MessageItem{item("msg-c", 5, "c"), item("msg-a", 1, "a")}
	next := []conversation.MessageItem{item("msg-b", 3, "b"), item("msg-d", 0, "d")}
	got := Merge(prev, next)
	for i := 1; i < len(got); i++ {
		if got[i-1].Index > got[i].Index {
			t.Fatalf("not sorted at %d: %+v", i, got)
		}
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	prev := []conversation.MessageItem{item("msg-b", 1, "b"), item("msg-a", 0, "a")}
	next := []conversation.MessageItem{item("msg-b", 1, "B")}
	Merge(prev, next)
	if prev[0].MsgID != "msg-b" || prev[0].Preview != "b" {
		t.Errorf("prev modified: %+v", prev)
	}
}

func TestMergeWith_LongestKeepsFullerText(t *testing.T) {
	prev := []conversation.MessageItem{item("msg-a", 0, "Hello world, full answer")}
	next := []conversation.MessageItem{item("msg-a", 0, "Hello wor")}

	if got := MergeWith(PolicyNewest, prev, next); got[0].Preview != "Hello wor" {
		t.Errorf("newest: got %q", got[0].Preview)
	}
	if got := MergeWith(PolicyLongest, prev, next); got[0].Preview != "Hello world, full answer" {
		t.Errorf("longest: got %q", got[0].Preview)
	}

	// A rewrite that is not a prefix still wins.
	edit := []conversation.MessageItem{item("msg-a", 0, "Bye")}
	if got := MergeWith(PolicyLongest, prev, edit); got[0].Preview != "Bye" {
		t.Errorf("longest edit: got %q", got[0].Preview)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyNewest, "newest": PolicyNewest, "longest": PolicyLongest} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("oldest"); err == nil {
		t.Error("expected error")
	}
}
