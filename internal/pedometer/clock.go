// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import "time"

type (
	// Clock abstracts the parts of package time the engine schedules with,
	// so tests can drive timers and the calendar date.
	Clock interface {
		Now() time.Time
		NewTicker(d time.Duration) Ticker
		AfterFunc(d time.Duration, f func()) Timer
	}

	// Ticker abstracts time.Ticker.
	Ticker interface {
		C() <-chan time.Time
		Stop()
	}

	// Timer abstracts the timer returned by time.AfterFunc.
	Timer interface {
		Stop() bool
	}

	wallClock struct{}

	wallTicker struct {
		*time.Ticker
	}
)

// WallClock returns a Clock backed by package time.
func WallClock() Clock {
	return wallClock{}
}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (wallClock) NewTicker(d time.Duration) Ticker {
	return wallTicker{Ticker: time.NewTicker(d)}
}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (t wallTicker) C() <-chan time.Time {
	return t.Ticker.C
}
