// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"fmt"
	"time"
)

// Config holds the tuning of one engine instance. Both the immediate and the
// batched variants of the tracker are expressed through the same fields.
type Config struct {
	// Step detection, magnitudes in g relative to the calibrated baseline.
	StepThreshold   float64
	SpikeRatio      float64 // the spike peak must exceed SpikeRatio*StepThreshold
	MinStepInterval time.Duration

	// Movement state, sum of absolute per-axis deltas between samples.
	MovementThreshold float64
	MovementDecay     time.Duration

	// Number of initial samples averaged into the baseline. 0 skips
	// calibration and uses a zero baseline.
	CalibrationSamples int

	// 0 commits every step immediately.
	BatchFlushInterval time.Duration

	CalorieCoefficient float64
	MovingCalorieBonus float64
	DailyGoal          int

	RolloverPollInterval time.Duration
	PersistTimeout       time.Duration
	StoreKey             string

	// Angle between the calibration gravity vector and the slow-moving
	// gravity estimate above which a drift warning is logged once.
	DriftWarnDegrees float64
}

// DefaultConfig returns the values the tracker ships with.
func DefaultConfig() Config {
	return Config{
		StepThreshold:        1.0,
		SpikeRatio:           0.8,
		MinStepInterval:      400 * time.Millisecond,
		MovementThreshold:    0.3,
		MovementDecay:        2 * time.Second,
		CalibrationSamples:   30,
		BatchFlushInterval:   0,
		CalorieCoefficient:   0.04,
		MovingCalorieBonus:   1.2,
		DailyGoal:            10000,
		RolloverPollInterval: time.Minute,
		PersistTimeout:       5 * time.Second,
		StoreKey:             "daily_steps",
		DriftWarnDegrees:     30,
	}
}

// Batched reports whether steps are buffered between flushes.
func (c Config) Batched() bool {
	return c.BatchFlushInterval > 0
}

// Validate checks ranges that would make the engine misbehave.
func (c Config) Validate() error {
	if c.StepThreshold <= 0 {
		return fmt.Errorf("step threshold must be > 0, got %v", c.StepThreshold)
	}
	if c.SpikeRatio <= 0 || c.SpikeRatio > 1 {
		return fmt.Errorf("spike ratio must be in (0, 1], got %v", c.SpikeRatio)
	}
	if c.MinStepInterval < 0 {
		return fmt.Errorf("min step interval must be >= 0, got %v", c.MinStepInterval)
	}
	if c.MovementThreshold <= 0 {
		return fmt.Errorf("movement threshold must be > 0, got %v", c.MovementThreshold)
	}
	if c.MovementDecay <= 0 {
		return fmt.Errorf("movement decay must be > 0, got %v", c.MovementDecay)
	}
	if c.CalibrationSamples < 0 {
		return fmt.Errorf("calibration samples must be >= 0, got %d", c.CalibrationSamples)
	}
	if c.BatchFlushInterval < 0 {
		return fmt.Errorf("batch flush interval must be >= 0, got %v", c.BatchFlushInterval)
	}
	if c.CalorieCoefficient < 0 {
		return fmt.Errorf("calorie coefficient must be >= 0, got %v", c.CalorieCoefficient)
	}
	if c.MovingCalorieBonus < 1 {
		return fmt.Errorf("moving calorie bonus must be >= 1, got %v", c.MovingCalorieBonus)
	}
	if c.RolloverPollInterval <= 0 {
		return fmt.Errorf("rollover poll interval must be > 0, got %v", c.RolloverPollInterval)
	}
	if c.StoreKey == "" {
		return fmt.Errorf("store key is required")
	}
	return nil
}
