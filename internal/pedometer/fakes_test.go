// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock only moves when told to. Timers fire from Advance on the
// caller's goroutine; tickers fire from Tick.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, period: d, ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// Tick fires every live ticker with the given period.
func (c *fakeClock) Tick(period time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tickers {
		if t.stopped || t.period != period {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
	}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// pendingTimers counts armed timers that have neither fired nor stopped.
func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	clock   *fakeClock
	period  time.Duration
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	t.stopped = true
	t.clock.mu.Unlock()
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// recordingStore keeps every write in order.
type recordingStore struct {
	mu      sync.Mutex
	stored  *DailyStepRecord
	writes  []DailyStepRecord
	getErr  error
	setErr  error
	setHook func(DailyStepRecord)
}

func (s *recordingStore) Get(ctx context.Context, key string) (*DailyStepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.stored == nil {
		return nil, nil
	}
	rec := *s.stored
	return &rec, nil
}

func (s *recordingStore) Set(ctx context.Context, key string, rec DailyStepRecord) error {
	s.mu.Lock()
	hook := s.setHook
	s.mu.Unlock()
	if hook != nil {
		hook(rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, rec)
	if s.setErr != nil {
		return s.setErr
	}
	s.stored = &rec
	return nil
}

func (s *recordingStore) Writes() []DailyStepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DailyStepRecord(nil), s.writes...)
}

func (s *recordingStore) Last() DailyStepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		return DailyStepRecord{}
	}
	return *s.stored
}

var errNoDevice = errors.New("no such device")

// manualSource hands samples to the engine synchronously from the test.
type manualSource struct {
	mu       sync.Mutex
	fn       func(imu.Sample)
	startErr error
	stops    int
}

func (s *manualSource) Name() string { return "manual" }

func (s *manualSource) Start(ctx context.Context, fn func(imu.Sample)) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return nil
}

func (s *manualSource) Stop() error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	return nil
}

func (s *manualSource) emit(sample imu.Sample) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(sample)
	}
}

// feeder produces samples at a fixed rate. A value m becomes (0, 0, 1+m),
// so with a (0, 0, 1) baseline the relative magnitude is m.
type feeder struct {
	src    *manualSource
	ts     time.Time
	period time.Duration
}

func newFeeder(src *manualSource, start time.Time) *feeder {
	return &feeder{src: src, ts: start, period: 100 * time.Millisecond}
}

func (f *feeder) vec(v imu.Vec3) {
	f.src.emit(imu.Sample{X: v.X, Y: v.Y, Z: v.Z, Timestamp: f.ts})
	f.ts = f.ts.Add(f.period)
}

func (f *feeder) mags(ms ...float64) {
	for _, m := range ms {
		f.vec(imu.Vec3{Z: 1 + m})
	}
}

// still feeds n samples at rest.
func (f *feeder) still(n int) {
	for i := 0; i < n; i++ {
		f.mags(0)
	}
}

// spike feeds one step-shaped pulse followed by rest, 8 samples in all.
func (f *feeder) spike() {
	f.mags(0, 1.2, 2.0, 1.2, 0, 0, 0, 0)
}
