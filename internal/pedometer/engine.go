// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/step_tracker/internal/imu"
	"github.com/relabs-tech/step_tracker/internal/orientation"
)

// gravityAlpha is the low-pass factor of the drift estimate, roughly a
// five second time constant at 10 Hz.
const gravityAlpha = 0.02

// Engine turns a sample stream into a daily step count and a movement flag.
//
// Every mutation of calibration, movement state and the daily record runs
// under mu, whether it comes from the sensor callback, a timer or a command.
// Timers carry the epoch they were started in and do nothing once Stop (or
// a later Start) has moved the epoch on.
type Engine struct {
	cfg   Config
	src   Source
	store Store
	clock Clock
	log   *slog.Logger

	listeners *broadcaster

	mu       sync.Mutex
	running  bool
	epoch    uint64
	stopCh   chan struct{}
	wg       sync.WaitGroup
	sensorOK bool

	cal      *Calibrator
	det      *StepDetector
	mov      *MovementTracker
	agg      *Aggregator
	rollover rolloverGuard
	persist  *persister

	decayTimer     Timer
	lastMotionWall time.Time

	gravity     orientation.GravityFilter
	driftWarned bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an engine. Nothing runs until Start.
func New(cfg Config, src Source, store Store, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pedometer: invalid config: %w", err)
	}
	if src == nil {
		return nil, fmt.Errorf("pedometer: source is required")
	}
	if store == nil {
		return nil, fmt.Errorf("pedometer: store is required")
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultConfig().PersistTimeout
	}

	e := &Engine{
		cfg:       cfg,
		src:       src,
		store:     store,
		clock:     WallClock(),
		log:       slog.Default(),
		listeners: newBroadcaster(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resetPipelineLocked()
	e.agg = NewAggregator(cfg.Batched())
	e.agg.Load(NewRecord(DateKey(e.clock.Now()), e.clock.Now()))
	return e, nil
}

func (e *Engine) resetPipelineLocked() {
	e.cal = NewCalibrator(e.cfg.CalibrationSamples)
	e.det = NewStepDetector(e.cfg)
	e.mov = NewMovementTracker(e.cfg)
	e.gravity = orientation.GravityFilter{Alpha: gravityAlpha}
	e.driftWarned = false
}

// Start loads today's record, starts the timers and attaches to the source.
// A source that cannot be opened is reported to listeners with
// SensorAvailable=false; the engine keeps running as a manual counter.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.epoch++
	epoch := e.epoch
	stop := make(chan struct{})
	e.stopCh = stop
	e.sensorOK = true
	e.resetPipelineLocked()
	e.persist = newPersister(e.store, e.cfg.StoreKey, e.cfg.PersistTimeout, e.log)
	e.mu.Unlock()

	stored := e.load(ctx)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return ErrNotRunning
	}
	now := e.clock.Now()
	rec, resumed := ResolveStartup(stored, now)
	e.agg.Load(rec)
	e.rollover.mark(rec.Date)
	if !resumed {
		e.persist.schedule(rec)
	}
	e.refreshLocked()
	e.publishLocked(ReasonLoad)
	e.mu.Unlock()

	e.log.Info("pedometer: engine started",
		"date", rec.Date, "steps", rec.StepCount, "resumed", resumed,
		"source", e.src.Name(), "batched", e.cfg.Batched())

	if e.cfg.Batched() {
		e.every(epoch, stop, e.cfg.BatchFlushInterval, e.flushTick)
	}
	e.every(epoch, stop, e.cfg.RolloverPollInterval, e.rolloverTick)

	if err := e.src.Start(ctx, func(s imu.Sample) { e.handleSample(epoch, s) }); err != nil {
		serr := &Error{Kind: KindSensorUnavailable, Op: "open " + e.src.Name(), Err: err}
		e.log.Warn("pedometer: sensor unavailable, counting manual steps only", "err", serr)

		e.mu.Lock()
		if e.epoch == epoch {
			e.sensorOK = false
			e.publishLocked(ReasonSensor)
		}
		e.mu.Unlock()
	}
	return nil
}

// load reads the stored record. Read failures are treated as no data.
func (e *Engine) load(ctx context.Context) *DailyStepRecord {
	stored, err := e.store.Get(ctx, e.cfg.StoreKey)
	if err != nil {
		rerr := &Error{Kind: KindPersistenceRead, Op: "load " + e.cfg.StoreKey, Err: err}
		e.log.Warn("pedometer: starting fresh", "err", rerr)
		return nil
	}
	return stored
}

// Stop cancels the timers, detaches the source and waits for queued
// writes. Pending batched steps are committed first.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	now := e.clock.Now()
	if e.agg.Flush(now) > 0 {
		e.refreshLocked()
		e.persist.schedule(e.agg.Record())
		e.publishLocked(ReasonFlush)
	}
	e.running = false
	e.epoch++
	close(e.stopCh)
	if e.decayTimer != nil {
		e.decayTimer.Stop()
		e.decayTimer = nil
	}
	p := e.persist
	e.mu.Unlock()

	err := e.src.Stop()
	e.wg.Wait()
	p.close()

	e.log.Info("pedometer: engine stopped", "steps", e.StepCount())
	if err != nil {
		return fmt.Errorf("pedometer: stop %s: %w", e.src.Name(), err)
	}
	return nil
}

// every runs fn on a ticker until stop is closed.
func (e *Engine) every(epoch uint64, stop <-chan struct{}, d time.Duration, fn func(uint64)) {
	t := e.clock.NewTicker(d)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				fn(epoch)
			}
		}
	}()
}

func (e *Engine) handleSample(epoch uint64, s imu.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.epoch != epoch {
		return
	}

	v := s.Vec()
	qualified, changed := e.mov.Observe(v, s.Timestamp)
	if qualified {
		e.lastMotionWall = e.clock.Now()
		e.armDecayLocked(epoch)
	}

	if !e.cal.Calibrated() {
		if e.cal.Add(v) {
			st := e.cal.State()
			e.gravity.Update(st.Baseline)
			pose := orientation.FromGravity(st.Baseline)
			e.log.Info("pedometer: calibrated",
				"samples", st.SampleCount,
				"baseline_x", st.Baseline.X, "baseline_y", st.Baseline.Y, "baseline_z", st.Baseline.Z,
				"roll", pose.Roll, "pitch", pose.Pitch,
				"stillness", StillnessConfidence(e.cal.StdDev()))
		}
		if changed {
			e.refreshLocked()
			e.publishLocked(ReasonMovement)
		}
		return
	}

	e.checkDriftLocked(v)

	if ev, ok := e.det.Process(v.Sub(e.cal.Baseline()), s.Timestamp); ok {
		if e.agg.Accept(ev, e.clock.Now()) {
			e.persist.schedule(e.agg.Record())
		}
		changed = false
		e.refreshLocked()
		e.publishLocked(ReasonStep)
	}
	if changed {
		e.refreshLocked()
		e.publishLocked(ReasonMovement)
	}
}

// checkDriftLocked logs once when the device has been re-oriented far from
// its calibration pose. No recalibration is attempted.
func (e *Engine) checkDriftLocked(v imu.Vec3) {
	g := e.gravity.Update(v)
	if e.driftWarned || e.cfg.DriftWarnDegrees <= 0 {
		return
	}
	base := e.cal.Baseline()
	if angle := orientation.AngleBetween(base, g); angle > e.cfg.DriftWarnDegrees {
		e.driftWarned = true
		from, to := orientation.FromGravity(base), orientation.FromGravity(g)
		e.log.Warn("pedometer: orientation drifted since calibration, counts may degrade",
			"angle", angle,
			"calibrated_roll", from.Roll, "calibrated_pitch", from.Pitch,
			"roll", to.Roll, "pitch", to.Pitch)
	}
}

func (e *Engine) armDecayLocked(epoch uint64) {
	if e.decayTimer != nil {
		return
	}
	e.decayTimer = e.clock.AfterFunc(e.cfg.MovementDecay, func() { e.decayFired(epoch) })
}

func (e *Engine) decayFired(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.epoch != epoch {
		return
	}
	e.decayTimer = nil
	if e.mov.State() != Moving {
		return
	}

	now := e.clock.Now()
	quiet := now.Sub(e.lastMotionWall)
	if quiet < e.cfg.MovementDecay {
		e.decayTimer = e.clock.AfterFunc(e.cfg.MovementDecay-quiet, func() { e.decayFired(epoch) })
		return
	}
	if e.mov.ForceIdle(now) {
		e.refreshLocked()
		e.publishLocked(ReasonMovement)
	}
}

func (e *Engine) flushTick(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.epoch != epoch {
		return
	}
	e.flushLocked()
}

func (e *Engine) flushLocked() int {
	n := e.agg.Flush(e.clock.Now())
	if n == 0 {
		return 0
	}
	e.refreshLocked()
	e.persist.schedule(e.agg.Record())
	e.publishLocked(ReasonFlush)
	e.log.Debug("pedometer: flushed batch", "steps", n, "total", e.agg.Record().StepCount)
	return n
}

func (e *Engine) rolloverTick(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.epoch != epoch {
		return
	}
	e.rolloverLocked()
}

// rolloverLocked closes the current day when the calendar date has moved on.
func (e *Engine) rolloverLocked() bool {
	now := e.clock.Now()
	closing := e.agg.Record()
	today, due := e.rollover.due(closing.Date, now)
	if !due {
		return false
	}

	if e.agg.Flush(now) > 0 {
		e.refreshLocked()
		e.persist.schedule(e.agg.Record())
	}
	closing = e.agg.Record()

	e.agg.Load(NewRecord(today, now))
	e.rollover.mark(today)
	e.refreshLocked()
	e.persist.schedule(e.agg.Record())
	e.publishLocked(ReasonRollover)

	e.log.Info("pedometer: day rollover", "closed", closing.Date, "closed_steps", closing.StepCount, "date", today)
	return true
}

// refreshLocked recomputes the cached calories from the committed count.
func (e *Engine) refreshLocked() {
	rec := e.agg.Record()
	e.agg.SetCalories(Calories(rec.StepCount, e.mov.State() == Moving,
		e.cfg.CalorieCoefficient, e.cfg.MovingCalorieBonus))
}

func (e *Engine) publishLocked(reason Reason) {
	e.listeners.publish(e.snapshotLocked(reason))
}

func (e *Engine) snapshotLocked(reason Reason) Update {
	rec := e.agg.Record()
	return Update{
		StepCount:       rec.StepCount,
		PendingSteps:    e.agg.Pending(),
		IsMoving:        e.mov.State() == Moving,
		Calories:        rec.Calories,
		Date:            rec.Date,
		Goal:            e.cfg.DailyGoal,
		GoalProgress:    GoalProgress(rec.StepCount, e.cfg.DailyGoal),
		Calibrated:      e.cal.Calibrated(),
		SensorAvailable: e.sensorOK,
		Reason:          reason,
		Time:            e.clock.Now(),
	}
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. Slow subscribers drop their oldest updates.
func (e *Engine) Subscribe(buffer int) (<-chan Update, func()) {
	return e.listeners.subscribe(buffer)
}

// OnUpdate calls fn for every update on a separate goroutine until the
// returned function is called.
func (e *Engine) OnUpdate(fn func(Update)) func() {
	ch, cancel := e.Subscribe(16)
	go func() {
		for u := range ch {
			fn(u)
		}
	}()
	return cancel
}

// ResetStepCount zeroes today's count, persists it and notifies listeners.
func (e *Engine) ResetStepCount() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	e.agg.Reset(e.clock.Now())
	e.refreshLocked()
	e.persist.schedule(e.agg.Record())
	e.publishLocked(ReasonReset)
	e.log.Info("pedometer: step count reset", "date", e.agg.Record().Date)
	return nil
}

// AddSteps commits n steps directly, in either mode.
func (e *Engine) AddSteps(n int) error {
	if n <= 0 {
		return fmt.Errorf("pedometer: add %d: %w", n, ErrInvalidSteps)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	e.agg.Add(n, e.clock.Now())
	e.refreshLocked()
	e.persist.schedule(e.agg.Record())
	e.publishLocked(ReasonAdd)
	return nil
}

// Flush commits pending batched steps now and returns how many moved.
func (e *Engine) Flush() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return 0, ErrNotRunning
	}
	return e.flushLocked(), nil
}

// StepCount is the committed count for today.
func (e *Engine) StepCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Record().StepCount
}

func (e *Engine) PendingSteps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Pending()
}

func (e *Engine) IsMoving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mov.State() == Moving
}

func (e *Engine) Calories() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Record().Calories
}

func (e *Engine) Record() DailyStepRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Record()
}

func (e *Engine) Calibration() CalibrationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cal.State()
}

func (e *Engine) Movement() MovementStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mov.Status()
}

func (e *Engine) SensorAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sensorOK
}

// Snapshot returns the current state in update form.
func (e *Engine) Snapshot() Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked("")
}
