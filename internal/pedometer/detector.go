// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"time"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

// StepDetector turns baseline-relative samples into debounced step events.
//
// It keeps the last three magnitudes a, b, c (c is the newest) and judges
// the middle one, b, as a peak candidate once its right neighbour is known:
//
//	b > threshold
//	b.time - lastStep.time >= minInterval
//	b > a && b > c && b > spikeRatio*threshold
//
// A footfall that lasts a single sample is therefore counted, one sample
// late, and the event carries b's timestamp.
type StepDetector struct {
	threshold   float64
	spikeRatio  float64
	minInterval time.Duration

	mags [3]float64
	ts   [3]time.Time
	seen int

	lastStep time.Time
	hasStep  bool
}

// NewStepDetector builds a detector from the engine config.
func NewStepDetector(cfg Config) *StepDetector {
	return &StepDetector{
		threshold:   cfg.StepThreshold,
		spikeRatio:  cfg.SpikeRatio,
		minInterval: cfg.MinStepInterval,
	}
}

// Process feeds one calibrated sample. It reports a step event when the
// sample confirms the previous one as a valid peak.
func (d *StepDetector) Process(rel imu.Vec3, ts time.Time) (StepEvent, bool) {
	d.mags[0], d.mags[1], d.mags[2] = d.mags[1], d.mags[2], rel.Norm()
	d.ts[0], d.ts[1], d.ts[2] = d.ts[1], d.ts[2], ts
	if d.seen < 3 {
		d.seen++
	}
	if d.seen < 3 {
		return StepEvent{}, false
	}

	peak, peakAt := d.mags[1], d.ts[1]
	if peak <= d.threshold {
		return StepEvent{}, false
	}
	if d.hasStep && peakAt.Sub(d.lastStep) < d.minInterval {
		return StepEvent{}, false
	}
	if !d.isSpike() {
		return StepEvent{}, false
	}

	d.lastStep = peakAt
	d.hasStep = true
	return StepEvent{Timestamp: peakAt, Magnitude: peak}, true
}

func (d *StepDetector) isSpike() bool {
	a, b, c := d.mags[0], d.mags[1], d.mags[2]
	return b > a && b > c && b > d.spikeRatio*d.threshold
}

// LastStep returns the time of the last accepted step.
func (d *StepDetector) LastStep() (time.Time, bool) {
	return d.lastStep, d.hasStep
}

// Reset clears the magnitude window and the debounce state.
func (d *StepDetector) Reset() {
	d.mags = [3]float64{}
	d.ts = [3]time.Time{}
	d.seen = 0
	d.lastStep = time.Time{}
	d.hasStep = false
}
