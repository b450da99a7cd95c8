// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"context"
	"time"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

// DailyStepRecord is the durable total for one calendar day.
type DailyStepRecord struct {
	Date       string    `json:"date"`
	StepCount  int       `json:"steps"`
	Calories   int       `json:"calories"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// StepEvent is emitted by the detector for each accepted step.
type StepEvent struct {
	Timestamp time.Time
	Magnitude float64
}

// BatchWindow buffers steps between flushes in batched mode.
type BatchWindow struct {
	WindowStart  time.Time
	PendingSteps int
}

// Store persists the current day's record under a stable key.
// Get returns (nil, nil) when nothing is stored.
type Store interface {
	Get(ctx context.Context, key string) (*DailyStepRecord, error)
	Set(ctx context.Context, key string, rec DailyStepRecord) error
}

// Source delivers accelerometer samples to fn until Stop is called.
// Start returns an error when the sensor cannot be opened.
type Source interface {
	Name() string
	Start(ctx context.Context, fn func(imu.Sample)) error
	Stop() error
}
