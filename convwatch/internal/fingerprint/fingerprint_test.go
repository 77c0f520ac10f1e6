package fingerprint

import (
	"strings"
	"testing"
)

func TestSum_Deterministic(t *testing.T) {
	inputs := []string{"", "a", "hello world", strings.Repeat("x", 10_000), "héllo 👋"}
	for _, in := range inputs {
		a, b := Sum(in), Sum(in)
		if a != b {
			t.Errorf("Sum(%q) not deterministic: %q != %q", in, a, b)
		}
		if len(a) != 8 {
			t.Errorf("Sum(%q) length: got %d, want 8", in, len(a))
		}
	}
}

func TestSum_KnownValues(t *testing.T) {
	cases := map[string]string{
		"":  "811c9dc5",
		"a": "e40c292c",
	}
	for in, want := range cases {
		if got := Sum(in); got != want {
			t.Errorf("Sum(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestSum_OrderSensitive(t *testing.T) {
	if Sum("ab") == Sum("ba") {
		t.Error("Sum should depend on character order")
	}
}

func TestSum_Lowercase(t *testing.T) {
	got := Sum("conversation-turn-3|assistant|2")
	if got != strings.ToLower(got) {
		t.Errorf("Sum should be lowercase hex, got %q", got)
	}
}

func TestSum_SurrogatePairs(t *testing.T) {
	// An astral character is two code units; hashing it must differ from
	// hashing either half alone.
	if Sum("😀") == Sum("\uFFFD") {
		t.Error("astral rune should not collapse to the replacement character")
	}
}
