package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const xvfbScreen = "1440x900x24"

// startXvfb runs a virtual display for headful mode and waits until its
// socket accepts clients.
func (m *Manager) startXvfb(ctx context.Context) error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", xvfbScreen, "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	if err := waitDisplay(ctx, display, 5*time.Second); err != nil {
		m.stopXvfb()
		return err
	}
	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

// displaySocket maps an X display (":99", ":99.0", "host:99") to its
// local socket path.
func displaySocket(display string) string {
	if i := strings.LastIndexByte(display, ':'); i >= 0 {
		display = display[i+1:]
	}
	if i := strings.IndexByte(display, '.'); i >= 0 {
		display = display[:i]
	}
	return filepath.Join("/tmp/.X11-unix", "X"+display)
}

// waitDisplay polls for the X socket of display.
func waitDisplay(ctx context.Context, display string, timeout time.Duration) error {
	sock := displaySocket(display)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if _, err := os.Stat(sock); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("xvfb: display %s not ready after %s", display, timeout)
		case <-tick.C:
		}
	}
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		_ = m.xvfb.Process.Kill()
		_ = m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped")
	m.xvfb = nil
}
