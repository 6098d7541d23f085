// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/session"
)

// Console prints one coloured status line per update.
type Console struct {
	w        io.Writer
	clk      clock.Clock
	interval time.Duration
	last     time.Time
}

// NewConsole creates a console renderer writing to w.
func NewConsole(w io.Writer, interval time.Duration, clk clock.Clock) *Console {
	return &Console{w: w, clk: clk, interval: interval}
}

// Render prints v unless the previous line was printed less than interval ago.
func (c *Console) Render(v View) error {
	now := c.clk.Now()
	if !c.last.IsZero() && now.Sub(c.last) < c.interval {
		return nil
	}
	c.last = now

	lines := StatusLines(v)
	if _, err := session.StatusColor(v.Status).Fprintf(c.w, "%-16s", lines[0]); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.w, " | %s | %s | %s | %.1f fps\n", lines[1], lines[2], lines[3], v.FPS)
	return err
}

// Close is a no-op.
func (c *Console) Close() error {
	return nil
}

var _ Renderer = (*Console)(nil)
var _ Renderer = (*OLED)(nil)
var _ Renderer = Nop{}
