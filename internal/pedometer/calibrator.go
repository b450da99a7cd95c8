// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"math"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

// Stillness heuristics in g. A device resting on a table sits well under
// stillStdGood; a hand-held phone is usually between the two.
const (
	stillStdGood = 0.01
	stillStdBad  = 0.05
	confFloor    = 0.05
)

// CalibrationState is a read-only view of the calibrator.
type CalibrationState struct {
	Baseline     imu.Vec3 `json:"baseline"`
	SampleCount  int      `json:"sample_count"`
	IsCalibrated bool     `json:"is_calibrated"`
}

// Calibrator averages the first window of samples into a per-axis baseline.
// Once the window is full the baseline is frozen; there is no
// recalibration, so large orientation changes later reduce accuracy.
type Calibrator struct {
	window int
	n      int
	mean   imu.Vec3
	m2     imu.Vec3 // sum of squared deviations (Welford)
	done   bool
}

// NewCalibrator returns a calibrator for the given window size. A window of
// zero is calibrated immediately with a zero baseline.
func NewCalibrator(window int) *Calibrator {
	c := &Calibrator{window: window}
	if window <= 0 {
		c.done = true
	}
	return c
}

// Add folds v into the running mean. It returns true for the sample that
// completes the window; samples after that are ignored.
func (c *Calibrator) Add(v imu.Vec3) bool {
	if c.done {
		return false
	}
	c.n++
	n := float64(c.n)

	dx := v.X - c.mean.X
	dy := v.Y - c.mean.Y
	dz := v.Z - c.mean.Z
	c.mean.X += dx / n
	c.mean.Y += dy / n
	c.mean.Z += dz / n
	c.m2.X += dx * (v.X - c.mean.X)
	c.m2.Y += dy * (v.Y - c.mean.Y)
	c.m2.Z += dz * (v.Z - c.mean.Z)

	if c.n >= c.window {
		c.done = true
		return true
	}
	return false
}

func (c *Calibrator) Calibrated() bool {
	return c.done
}

func (c *Calibrator) Baseline() imu.Vec3 {
	return c.mean
}

// State returns a snapshot of the calibration.
func (c *Calibrator) State() CalibrationState {
	return CalibrationState{
		Baseline:     c.mean,
		SampleCount:  c.n,
		IsCalibrated: c.done,
	}
}

// StdDev is the per-axis population standard deviation of the samples seen.
func (c *Calibrator) StdDev() imu.Vec3 {
	if c.n == 0 {
		return imu.Vec3{}
	}
	n := float64(c.n)
	return imu.Vec3{
		X: math.Sqrt(c.m2.X / n),
		Y: math.Sqrt(c.m2.Y / n),
		Z: math.Sqrt(c.m2.Z / n),
	}
}

// StillnessConfidence maps the worst per-axis standard deviation to [floor, 1].
func StillnessConfidence(std imu.Vec3) float64 {
	worst := math.Max(std.X, math.Max(std.Y, std.Z))
	if worst <= stillStdGood {
		return 1
	}
	if worst >= stillStdBad {
		return confFloor
	}
	conf := 1 - (worst-stillStdGood)/(stillStdBad-stillStdGood)
	return math.Max(conf, confFloor)
}
