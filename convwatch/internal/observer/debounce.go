package observer

import "time"

// debouncer implements a trailing-edge debounce: every add restarts the
// window, and the flush function runs once the window elapses with no
// further add.
type debouncer struct {
	window  time.Duration
	pending int
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func(events int)
}

func newDebouncer(window time.Duration, flushFn func(events int)) *debouncer {
	if window <= 0 {
		window = 250 * time.Millisecond
	}
	return &debouncer{window: window, flushFn: flushFn}
}

// add records an event and (re)starts the window timer.
func (d *debouncer) add() {
	d.pending++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
}

// timerC returns the channel that fires when the window expires. It is nil
// (blocks forever in a select) while nothing is pending.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// flush emits the pending events, if any, and resets.
func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if d.pending == 0 {
		return
	}
	n := d.pending
	d.pending = 0
	d.flushFn(n)
}

// stop discards pending events.
func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer, d.timerCh, d.pending = nil, nil, 0
}
