// Package crawl drives scroll-and-scan cycles that walk a conversation
// upward so lazily loaded older turns get rendered and captured.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hazyhaar/convwatch/convwatch/internal/dom"
	"github.com/hazyhaar/convwatch/convwatch/internal/scan"
)

// Scanner is the scan step run between scrolls.
type Scanner interface {
	ScanAndPersist(ctx context.Context) (scan.Result, error)
}

// Recorder receives crawl metrics.
type Recorder interface {
	RecordSimple(name string, value float64, unit string)
}

// Config for creating a Crawler.
type Config struct {
	Scanner  Scanner
	Viewport dom.Viewport
	// MaxSteps bounds the scroll iterations. Default: 80.
	MaxSteps int
	// ScrollFraction of the viewport height scrolled up per step. Default: 0.85.
	ScrollFraction float64
	// Settle is the wait after each scroll for the page to render. Default: 220ms.
	Settle  time.Duration
	Metrics Recorder // optional
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 80
	}
	if c.ScrollFraction <= 0 || c.ScrollFraction > 1 {
		c.ScrollFraction = 0.85
	}
	if c.Settle <= 0 {
		c.Settle = 220 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Crawler walks the conversation to its top.
type Crawler struct {
	cfg Config
}

// New creates a Crawler.
func New(cfg Config) *Crawler {
	cfg.defaults()
	return &Crawler{cfg: cfg}
}

// Crawl scans, scrolls up by a fraction of the viewport, waits, and repeats
// until the scroll position stops moving or MaxSteps is reached. A final
// scan follows the loop. The starting scroll position is restored on every
// exit path, including errors and cancellation.
func (c *Crawler) Crawl(ctx context.Context) error {
	vp := c.cfg.Viewport
	start := vp.ScrollY()
	defer vp.ScrollTo(start)

	steps := 0
	defer func() {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordSimple("crawl_steps", float64(steps), "count")
		}
	}()

	for steps < c.cfg.MaxSteps {
		steps++
		if _, err := c.cfg.Scanner.ScanAndPersist(ctx); err != nil {
			return fmt.Errorf("crawl: step %d: %w", steps, err)
		}

		before := vp.ScrollY()
		vp.ScrollBy(-math.Floor(vp.InnerHeight() * c.cfg.ScrollFraction))

		if err := sleep(ctx, c.cfg.Settle); err != nil {
			return fmt.Errorf("crawl: %w", err)
		}
		if vp.ScrollY() == before {
			break
		}
	}

	if _, err := c.cfg.Scanner.ScanAndPersist(ctx); err != nil {
		return fmt.Errorf("crawl: final scan: %w", err)
	}
	c.cfg.Logger.Debug("crawl: done", "steps", steps, "start_y", start)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
