// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

const (
	oledWidth  = 128
	oledHeight = 64
	lineHeight = 13
)

// Display shows the step count on an SSD1306 OLED on the default I2C bus.
type Display struct {
	bus      i2c.BusCloser
	dev      *ssd1306.Dev
	interval time.Duration
	log      *slog.Logger
}

// OpenDisplay initialises periph, the I2C bus and the panel, and shows the
// splash screen.
func OpenDisplay(interval time.Duration, log *slog.Logger) (*Display, error) {
	if log == nil {
		log = slog.Default()
	}
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
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Info("display: initialized", "bus", bus.String())

	d := &Display{bus: bus, dev: dev, interval: interval, log: log}
	if err := d.draw(splashLines()); err != nil {
		log.Warn("display: error showing splash", "err", err)
	}
	return d, nil
}

// Run redraws the latest update every interval until ctx is done or the
// update channel closes. Frames are only drawn when something changed.
func (d *Display) Run(ctx context.Context, updates <-chan pedometer.Update) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var (
		latest pedometer.Update
		have   bool
		dirty  bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			latest, have, dirty = u, true, true
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			lines := waitingLines()
			if have {
				lines = StepLines(latest)
			}
			if err := d.draw(lines); err != nil {
				d.log.Warn("display: error updating display", "err", err)
			}
		}
	}
}

func (d *Display) draw(lines []string) error {
	img := RenderLines(lines)
	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

// Close blanks the panel and releases the bus.
func (d *Display) Close() error {
	if err := d.dev.Halt(); err != nil {
		d.log.Warn("display: halt failed", "err", err)
	}
	return d.bus.Close()
}

// StepLines formats an update as the four text lines of the panel.
func StepLines(u pedometer.Update) []string {
	state := "idle"
	if u.IsMoving {
		state = "MOVING"
	}
	if !u.SensorAvailable {
		state = "no sensor"
	} else if !u.Calibrated {
		state = "calibrating"
	}

	steps := fmt.Sprintf("Steps %6d", u.StepCount)
	if u.PendingSteps > 0 {
		steps = fmt.Sprintf("Steps %6d+%d", u.StepCount, u.PendingSteps)
	}
	return []string{
		steps,
		fmt.Sprintf("Goal  %5.0f%%", u.GoalProgress*100),
		fmt.Sprintf("kcal  %6d", u.Calories),
		state,
	}
}

func splashLines() []string {
	return []string{"", "Step Tracker", "Calibrating", "keep still"}
}

func waitingLines() []string {
	return []string{"", "Step Tracker", "Waiting..."}
}

// RenderLines draws up to four lines of 7x13 text on a blank frame.
func RenderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i >= oledHeight/lineHeight {
			break
		}
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawString(line)
	}
	return img
}
