// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display renders the live posture status: on a 128x64 SSD1306
// OLED, on the terminal, or nowhere.
package display

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// View is what a renderer shows for one tick.
type View struct {
	Status    posture.Status
	Angle     float64
	Score     float64
	BadFor    time.Duration
	Alerts    int
	Breaks    int
	NextBreak time.Duration
	FPS       float64
	// Calibrated is true when a personal baseline drives classification.
	Calibrated bool
}

// Renderer shows views. Render errors are reported to the caller and are
// never fatal to the monitor loop.
type Renderer interface {
	Render(v View) error
	Close() error
}

// Nop discards every view.
type Nop struct{}

func (Nop) Render(View) error { return nil }
func (Nop) Close() error      { return nil }

// Line baselines for basicfont.Face7x13 on a 64 pixel tall panel.
var lineY = [...]int{13, 26, 39, 52}

// DrawStatus draws the four-line status panel onto dst using the on colour
// for lit pixels. dst is not cleared first.
func DrawStatus(dst draw.Image, on color.Color, v View) {
	lines := StatusLines(v)
	DrawLines(dst, on, lines[:]...)
}

// DrawLines draws up to four lines of text, one per panel row.
func DrawLines(dst draw.Image, on color.Color, lines ...string) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(on),
		Face: basicfont.Face7x13,
	}

	for i, line := range lines {
		if i >= len(lineY) {
			break
		}
		drawer.Dot = fixed.P(0, lineY[i])
		drawer.DrawString(line)
	}
}

// StatusLines returns the text of the status panel.
func StatusLines(v View) [4]string {
	var lines [4]string

	if v.Status == posture.Unknown {
		lines[0] = "No person"
	} else {
		lines[0] = fmt.Sprintf("%-4s %6.1f deg", v.Status, v.Angle)
	}

	mode := "def"
	if v.Calibrated {
		mode = "cal"
	}
	lines[1] = fmt.Sprintf("Score %5.1f %s", v.Score, mode)

	if v.BadFor > 0 {
		lines[2] = fmt.Sprintf("Bad %s A:%d", clockString(v.BadFor), v.Alerts)
	} else {
		lines[2] = fmt.Sprintf("Alerts %d", v.Alerts)
	}

	lines[3] = fmt.Sprintf("Brk %s B:%d", clockString(v.NextBreak), v.Breaks)
	return lines
}

// clockString formats d as m:ss, or h:mm:ss past an hour.
func clockString(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
