// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import "time"

// Aggregator owns the day's record and, in batched mode, the pending window.
// It does no locking; the engine serialises every call.
type Aggregator struct {
	batched bool
	record  DailyStepRecord
	window  BatchWindow
}

func NewAggregator(batched bool) *Aggregator {
	return &Aggregator{batched: batched}
}

// Load replaces the record, dropping anything pending.
func (a *Aggregator) Load(rec DailyStepRecord) {
	a.record = rec
	a.window = BatchWindow{WindowStart: rec.LastUpdate}
}

// Accept counts one step. It returns true when the committed total changed
// (immediate mode) and false when the step went into the batch window.
func (a *Aggregator) Accept(ev StepEvent, now time.Time) bool {
	if a.batched {
		a.window.PendingSteps++
		return false
	}
	a.record.StepCount++
	a.record.LastUpdate = now
	return true
}

// Flush moves the pending steps into the committed total and returns how
// many were moved.
func (a *Aggregator) Flush(now time.Time) int {
	n := a.window.PendingSteps
	a.window = BatchWindow{WindowStart: now}
	if n == 0 {
		return 0
	}
	a.record.StepCount += n
	a.record.LastUpdate = now
	return n
}

// Add commits n manually injected steps, bypassing the batch window.
func (a *Aggregator) Add(n int, now time.Time) {
	a.record.StepCount += n
	a.record.LastUpdate = now
}

// Reset zeroes the committed total and the pending window.
func (a *Aggregator) Reset(now time.Time) {
	a.record.StepCount = 0
	a.record.LastUpdate = now
	a.window = BatchWindow{WindowStart: now}
}

func (a *Aggregator) SetCalories(c int) {
	a.record.Calories = c
}

func (a *Aggregator) Record() DailyStepRecord {
	return a.record
}

func (a *Aggregator) Window() BatchWindow {
	return a.window
}

func (a *Aggregator) Pending() int {
	return a.window.PendingSteps
}
