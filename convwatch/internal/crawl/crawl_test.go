package crawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/convwatch/convwatch/internal/scan"
)

// fakeViewport moves for the first `moves` scrolls, then sticks (top reached).
type fakeViewport struct {
	y        float64
	height   float64
	moves    int
	scrolls  int
	restored []float64
}

func (v *fakeViewport) ScrollY() float64     { return v.y }
func (v *fakeViewport) InnerHeight() float64 { return v.height }
func (v *fakeViewport) ScrollTo(y float64)   { v.y = y; v.restored = append(v.restored, y) }
func (v *fakeViewport) ScrollBy(dy float64) {
	v.scrolls++
	if v.scrolls <= v.moves {
		v.y += dy
	}
}

type fakeScanner struct {
	calls  int
	failAt int
	onScan func()
}

func (s *fakeScanner) ScanAndPersist(context.Context) (scan.Result, error) {
	s.calls++
	if s.onScan != nil {
		s.onScan()
	}
	if s.failAt > 0 && s.calls == s.failAt {
		return scan.Result{}, errors.New("store down")
	}
	return scan.Result{}, nil
}

type metrics struct{ got map[string]float64 }

func (m *metrics) RecordSimple(name string, v float64, _ string) {
	if m.got == nil {
		m.got = map[string]float64{}
	}
	m.got[name] = v
}

func TestCrawl_StopsWhenScrollSticks(t *testing.T) {
	vp := &fakeViewport{y: 5000, height: 1000, moves: 3}
	sc := &fakeScanner{}
	m := &metrics{}
	c := New(Config{Scanner: sc, Viewport: vp, Settle: time.Millisecond, Metrics: m})

	if err := c.Crawl(context.Background()); err != nil {
		t.Fatal(err)
	}
	if vp.scrolls != 4 {
		t.Errorf("scroll iterations: got %d, want 4", vp.scrolls)
	}
	// One scan per iteration plus the final scan.
	if sc.calls != 5 {
		t.Errorf("scans: got %d, want 5", sc.calls)
	}
	if vp.y != 5000 {
		t.Errorf("scroll not restored: y=%v", vp.y)
	}
	if m.got["crawl_steps"] != 4 {
		t.Errorf("crawl_steps: got %v, want 4", m.got["crawl_steps"])
	}
}

func TestCrawl_ScrollAmount(t *testing.T) {
	vp := &fakeViewport{y: 10000, height: 999, moves: 1}
	var ys []float64
	sc := &fakeScanner{onScan: func() { ys = append(ys, vp.y) }}
	New(Config{Scanner: sc, Viewport: vp, Settle: time.Millisecond}).Crawl(context.Background())

	// floor(999 * 0.85) = 849
	if len(ys) < 2 || ys[1] != 10000-849 {
		t.Errorf("scan positions: %v", ys)
	}
}

func TestCrawl_StepCeiling(t *testing.T) {
	vp := &fakeViewport{y: 1e9, height: 100, moves: 1 << 30}
	sc := &fakeScanner{}
	New(Config{Scanner: sc, Viewport: vp, MaxSteps: 7, Settle: time.Microsecond}).Crawl(context.Background())

	if vp.scrolls != 7 || sc.calls != 8 {
		t.Errorf("scrolls=%d scans=%d, want 7 and 8", vp.scrolls, sc.calls)
	}
	if vp.y != 1e9 {
		t.Errorf("scroll not restored: %v", vp.y)
	}
}

func TestCrawl_ScanErrorRestoresScroll(t *testing.T) {
	vp := &fakeViewport{y: 3000, height: 1000, moves: 10}
	sc := &fakeScanner{failAt: 2}
	err := New(Config{Scanner: sc, Viewport: vp, Settle: time.Millisecond}).Crawl(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if vp.y != 3000 {
		t.Errorf("scroll not restored: %v", vp.y)
	}
}

func TestCrawl_Cancelled(t *testing.T) {
	vp := &fakeViewport{y: 3000, height: 1000, moves: 10}
	ctx, cancel := context.WithCancel(context.Background())
	sc := &fakeScanner{onScan: cancel}
	err := New(Config{Scanner: sc, Viewport: vp, Settle: time.Hour}).Crawl(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if vp.y != 3000 {
		t.Errorf("scroll not restored: %v", vp.y)
	}
}
