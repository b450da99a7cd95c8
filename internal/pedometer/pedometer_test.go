// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

func TestCalibratorAveragesWindow(t *testing.T) {
	c := NewCalibrator(4)
	samples := []imu.Vec3{{Z: 0.9}, {Z: 1.1}, {X: 0.2, Z: 1.0}, {X: -0.2, Z: 1.0}}
	for i, s := range samples {
		done := c.Add(s)
		assert.Equal(t, i == len(samples)-1, done)
	}

	require.True(t, c.Calibrated())
	assert.InDelta(t, 1.0, c.Baseline().Z, 1e-9)
	assert.InDelta(t, 0.0, c.Baseline().X, 1e-9)
	assert.Equal(t, 4, c.State().SampleCount)

	// Frozen after the window.
	assert.False(t, c.Add(imu.Vec3{Z: 5}))
	assert.InDelta(t, 1.0, c.Baseline().Z, 1e-9)
}

func TestCalibratorZeroWindow(t *testing.T) {
	c := NewCalibrator(0)
	assert.True(t, c.Calibrated())
	assert.Equal(t, imu.Vec3{}, c.Baseline())
}

func TestStillnessConfidence(t *testing.T) {
	assert.Equal(t, 1.0, StillnessConfidence(imu.Vec3{X: 0.001, Y: 0.002, Z: 0.005}))
	assert.Equal(t, confFloor, StillnessConfidence(imu.Vec3{Z: 0.2}))
	assert.InDelta(t, 0.5, StillnessConfidence(imu.Vec3{Y: 0.03}), 1e-9)

	c := NewCalibrator(3)
	for i := 0; i < 3; i++ {
		c.Add(imu.Vec3{Z: 1})
	}
	assert.Equal(t, imu.Vec3{}, c.StdDev())
}

func detectAll(d *StepDetector, start time.Time, mags ...float64) int {
	n := 0
	for i, m := range mags {
		if _, ok := d.Process(imu.Vec3{Z: m}, start.Add(time.Duration(i)*100*time.Millisecond)); ok {
			n++
		}
	}
	return n
}

func TestDetectorSpikeShape(t *testing.T) {
	tests := []struct {
		name string
		mags []float64
		want int
	}{
		{"triangle", []float64{0, 1.2, 2.0, 1.2, 0}, 1},
		{"single sample spike", []float64{0, 0, 3.0, 0, 0}, 1},
		{"shoulders below threshold", []float64{0, 0.5, 2.0, 0.9, 0}, 1},
		{"peak at threshold", []float64{0, 0, 1.0, 0, 0}, 0},
		{"peak not yet confirmed", []float64{0, 0, 2.0}, 0},
		{"plateau", []float64{0, 1.5, 1.5, 1.5, 0}, 0},
		{"peak too small", []float64{0, 0.5, 0.7, 0.6, 0}, 0},
		{"rising only", []float64{0, 1.1, 1.2, 1.3, 1.4}, 0},
		{"two spikes at debounce", []float64{0, 1.2, 2.0, 1.2, 0, 1.2, 2.0, 1.2}, 2},
		{"two peaks too close", []float64{1.2, 2.0, 1.2, 2.0, 1.2, 0}, 1},
		{"single sample peaks under debounce", []float64{0, 2.0, 0, 0, 2.0, 0}, 1},
		{"single sample peaks at debounce", []float64{0, 2.0, 0, 0, 0, 2.0, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewStepDetector(DefaultConfig())
			assert.Equal(t, tt.want, detectAll(d, day1, tt.mags...))
		})
	}
}

func TestDetectorEventAndReset(t *testing.T) {
	d := NewStepDetector(DefaultConfig())
	var ev StepEvent
	var ok bool
	for i, m := range []float64{0, 1.2, 2.5, 1.1} {
		ev, ok = d.Process(imu.Vec3{X: m}, day1.Add(time.Duration(i)*time.Second))
	}
	require.True(t, ok)
	assert.InDelta(t, 2.5, ev.Magnitude, 1e-9)
	assert.Equal(t, day1.Add(2*time.Second), ev.Timestamp, "event carries the peak time")

	last, has := d.LastStep()
	assert.True(t, has)
	assert.Equal(t, ev.Timestamp, last)

	d.Reset()
	_, has = d.LastStep()
	assert.False(t, has)
}

func TestMovementHysteresis(t *testing.T) {
	m := NewMovementTracker(DefaultConfig())
	ts := day1

	_, changed := m.Observe(imu.Vec3{Z: 1}, ts)
	assert.False(t, changed)

	ts = ts.Add(100 * time.Millisecond)
	q, changed := m.Observe(imu.Vec3{X: 0.2, Y: 0.2, Z: 1}, ts)
	assert.True(t, q)
	assert.True(t, changed)
	assert.Equal(t, Moving, m.State())
	assert.Equal(t, ts, m.Status().LastTransition)

	// Small deltas inside the window keep Moving.
	ts = ts.Add(time.Second)
	q, changed = m.Observe(imu.Vec3{X: 0.25, Y: 0.2, Z: 1}, ts)
	assert.False(t, q)
	assert.False(t, changed)
	assert.Equal(t, Moving, m.State())

	assert.False(t, m.Expire(ts.Add(500*time.Millisecond)))
	assert.True(t, m.Expire(ts.Add(time.Second)))
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, "idle", m.State().String())
}

func TestMovementThresholdIsStrict(t *testing.T) {
	m := NewMovementTracker(DefaultConfig())
	m.Observe(imu.Vec3{}, day1)
	q, _ := m.Observe(imu.Vec3{X: 0.1, Y: 0.1, Z: 0.05}, day1.Add(time.Second))
	assert.False(t, q)
	assert.False(t, m.ForceIdle(day1))
}

func TestAggregatorModes(t *testing.T) {
	now := day1
	ev := StepEvent{Timestamp: now, Magnitude: 2}

	imm := NewAggregator(false)
	imm.Load(NewRecord("2026-03-14", now))
	assert.True(t, imm.Accept(ev, now))
	assert.True(t, imm.Accept(ev, now))
	assert.Equal(t, 2, imm.Record().StepCount)
	assert.Equal(t, 0, imm.Flush(now))

	b := NewAggregator(true)
	b.Load(NewRecord("2026-03-14", now))
	assert.False(t, b.Accept(ev, now))
	assert.False(t, b.Accept(ev, now))
	assert.Equal(t, 0, b.Record().StepCount)
	assert.Equal(t, 2, b.Pending())

	later := now.Add(time.Minute)
	assert.Equal(t, 2, b.Flush(later))
	assert.Equal(t, 2, b.Record().StepCount)
	assert.Equal(t, later, b.Record().LastUpdate)
	assert.Equal(t, later, b.Window().WindowStart)

	b.Accept(ev, now)
	b.Add(10, later)
	assert.Equal(t, 12, b.Record().StepCount)
	assert.Equal(t, 1, b.Pending())

	b.Reset(later)
	assert.Equal(t, 0, b.Record().StepCount)
	assert.Equal(t, 0, b.Pending())
}

func TestCalories(t *testing.T) {
	assert.Equal(t, 400, Calories(10000, false, 0.04, 1.2))
	assert.Equal(t, 480, Calories(10000, true, 0.04, 1.2))
	assert.Equal(t, 0, Calories(24, false, 0.04, 1.2))
	assert.Equal(t, 1, Calories(25, false, 0.04, 1.2))
	assert.Equal(t, Calories(777, true, 0.04, 1.2), Calories(777, true, 0.04, 1.2))
}

func TestGoalProgress(t *testing.T) {
	assert.Equal(t, 0.0, GoalProgress(100, 0))
	assert.InDelta(t, 0.25, GoalProgress(2500, 10000), 1e-9)
	assert.Equal(t, 1.0, GoalProgress(25000, 10000))
}

func TestResolveStartup(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)

	rec, resumed := ResolveStartup(nil, now)
	assert.False(t, resumed)
	assert.Equal(t, DailyStepRecord{Date: "2026-03-14", LastUpdate: now}, rec)

	stored := &DailyStepRecord{Date: "2026-03-14", StepCount: 12}
	rec, resumed = ResolveStartup(stored, now)
	assert.True(t, resumed)
	assert.Equal(t, 12, rec.StepCount)

	old := &DailyStepRecord{Date: "2026-03-13", StepCount: 12}
	rec, resumed = ResolveStartup(old, now)
	assert.False(t, resumed)
	assert.Equal(t, 0, rec.StepCount)
	assert.Equal(t, 12, old.StepCount)
}

func TestDateKeyUsesClockLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-14", DateKey(ts))
	assert.Equal(t, "2026-03-15", DateKey(ts.In(loc)))
}

func TestRolloverGuard(t *testing.T) {
	var g rolloverGuard
	g.mark("2026-03-14")

	_, due := g.due("2026-03-14", day1)
	assert.False(t, due)

	next := day1.Add(24 * time.Hour)
	today, due := g.due("2026-03-14", next)
	assert.True(t, due)
	assert.Equal(t, "2026-03-15", today)

	g.mark(today)
	_, due = g.due("2026-03-14", next)
	assert.False(t, due)

	// Clock stepped back into the closed day, then forward again.
	_, due = g.due("2026-03-15", day1)
	assert.False(t, due)
	_, due = g.due("2026-03-15", next.Add(time.Minute))
	assert.False(t, due)

	_, due = g.due("2026-03-15", next.Add(24*time.Hour))
	assert.True(t, due)
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("permission denied")
	err := fmt.Errorf("start: %w", &Error{Kind: KindSensorUnavailable, Op: "open spi", Err: cause})

	assert.ErrorIs(t, err, ErrSensorUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrPersistenceWrite)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindSensorUnavailable, perr.Kind)
	assert.Equal(t, "[SENSOR_UNAVAILABLE] open spi: permission denied", perr.Error())

	assert.ErrorIs(t, &Error{Kind: KindPersistenceRead, Op: "load"}, ErrPersistenceRead)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.False(t, DefaultConfig().Batched())

	mutations := map[string]func(*Config){
		"threshold":   func(c *Config) { c.StepThreshold = 0 },
		"spike ratio": func(c *Config) { c.SpikeRatio = 1.5 },
		"movement":    func(c *Config) { c.MovementThreshold = -1 },
		"decay":       func(c *Config) { c.MovementDecay = 0 },
		"bonus":       func(c *Config) { c.MovingCalorieBonus = 0.5 },
		"poll":        func(c *Config) { c.RolloverPollInterval = 0 },
		"key":         func(c *Config) { c.StoreKey = "" },
		"calibration": func(c *Config) { c.CalibrationSamples = -1 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBroadcasterDropsOldest(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe(1)

	b.publish(Update{StepCount: 1})
	b.publish(Update{StepCount: 2})
	b.publish(Update{StepCount: 3})

	got := <-ch
	assert.Equal(t, 3, got.StepCount)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	b.publish(Update{StepCount: 4})
}

func TestPersisterCoalescesPerDate(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	first := true
	store := &recordingStore{}
	store.setHook = func(DailyStepRecord) {
		if first {
			first = false
			close(started)
			<-release
		}
	}

	p := newPersister(store, "k", time.Second, discardLogger())
	p.schedule(DailyStepRecord{Date: "2026-03-14", StepCount: 1})
	<-started

	p.schedule(DailyStepRecord{Date: "2026-03-14", StepCount: 2})
	p.schedule(DailyStepRecord{Date: "2026-03-14", StepCount: 3})
	p.schedule(DailyStepRecord{Date: "2026-03-15", StepCount: 1})
	close(release)
	p.close()

	writes := store.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, 1, writes[0].StepCount)
	assert.Equal(t, DailyStepRecord{Date: "2026-03-14", StepCount: 3}, writes[1])
	assert.Equal(t, DailyStepRecord{Date: "2026-03-15", StepCount: 1}, writes[2])

	p.schedule(DailyStepRecord{Date: "2026-03-16"})
	assert.Len(t, store.Writes(), 3)
}

func TestPersisterUsesTimeout(t *testing.T) {
	store := &deadlineStore{}
	p := newPersister(store, "k", 50*time.Millisecond, discardLogger())
	p.schedule(DailyStepRecord{Date: "2026-03-14"})
	p.close()
	assert.True(t, store.hadDeadline)
}

type deadlineStore struct {
	hadDeadline bool
}

func (s *deadlineStore) Get(context.Context, string) (*DailyStepRecord, error) { return nil, nil }

func (s *deadlineStore) Set(ctx context.Context, _ string, _ DailyStepRecord) error {
	_, s.hadDeadline = ctx.Deadline()
	return nil
}
