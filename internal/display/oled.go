// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/posture_monitor/internal/clock"
)

// OLED renders to an SSD1306 128x64 panel over I2C.
type OLED struct {
	bus      i2c.BusCloser
	dev      *ssd1306.Dev
	img      *image1bit.VerticalLSB
	clk      clock.Clock
	interval time.Duration
	last     time.Time
	logger   zerolog.Logger
}

// NewOLED opens the default I2C bus and the panel at addr, and shows a
// splash screen. Renders closer together than interval are skipped.
func NewOLED(addr uint16, interval time.Duration, clk clock.Clock, logger zerolog.Logger) (*OLED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display at 0x%02X: %w", addr, err)
	}

	o := &OLED{
		bus:      bus,
		dev:      dev,
		img:      image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64)),
		clk:      clk,
		interval: interval,
		logger:   logger.With().Str("component", "display").Logger(),
	}
	o.logger.Info().Msgf("display initialized at 0x%02X", addr)

	if err := o.splash(); err != nil {
		o.logger.Warn().Err(err).Msg("error showing splash")
	}
	return o, nil
}

func (o *OLED) splash() error {
	o.clear()
	DrawLines(o.img, image1bit.On, "Posture", "Monitor", "", "Starting...")
	return o.dev.Draw(o.dev.Bounds(), o.img, image.Point{})
}

// Render draws v unless the previous frame was drawn less than interval ago.
func (o *OLED) Render(v View) error {
	now := o.clk.Now()
	if !o.last.IsZero() && now.Sub(o.last) < o.interval {
		return nil
	}
	o.last = now

	o.clear()
	DrawStatus(o.img, image1bit.On, v)
	return o.dev.Draw(o.dev.Bounds(), o.img, image.Point{})
}

// Close blanks the panel and releases the bus.
func (o *OLED) Close() error {
	haltErr := o.dev.Halt()
	if err := o.bus.Close(); err != nil {
		return err
	}
	return haltErr
}

func (o *OLED) clear() {
	for i := range o.img.Pix {
		o.img.Pix[i] = 0
	}
}
