// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"time"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

// MovementState is Idle or Moving.
type MovementState int

const (
	Idle MovementState = iota
	Moving
)

func (s MovementState) String() string {
	if s == Moving {
		return "moving"
	}
	return "idle"
}

// MovementStatus is the current state and when it was entered.
type MovementStatus struct {
	State          MovementState `json:"state"`
	LastTransition time.Time     `json:"last_transition"`
}

// MovementTracker is a two-state machine with hysteresis. Any sample whose
// summed per-axis change exceeds the threshold enters (or keeps) Moving;
// the state falls back to Idle only after a full decay window without
// another qualifying sample.
type MovementTracker struct {
	threshold float64
	decay     time.Duration

	state          MovementState
	lastTransition time.Time
	lastQualifying time.Time

	prev    imu.Vec3
	hasPrev bool
}

func NewMovementTracker(cfg Config) *MovementTracker {
	return &MovementTracker{
		threshold: cfg.MovementThreshold,
		decay:     cfg.MovementDecay,
	}
}

// Observe feeds one raw sample. qualified reports whether the sample
// counted as movement; changed whether the state differs from before.
func (m *MovementTracker) Observe(v imu.Vec3, ts time.Time) (qualified, changed bool) {
	before := m.state
	m.Expire(ts)

	if m.hasPrev && v.Sub(m.prev).AbsSum() > m.threshold {
		qualified = true
		m.lastQualifying = ts
		if m.state == Idle {
			m.state = Moving
			m.lastTransition = ts
		}
	}
	m.prev = v
	m.hasPrev = true

	return qualified, m.state != before
}

// Expire moves to Idle when the decay window has elapsed at now.
func (m *MovementTracker) Expire(now time.Time) bool {
	if m.state != Moving || now.Sub(m.lastQualifying) < m.decay {
		return false
	}
	m.state = Idle
	m.lastTransition = now
	return true
}

// ForceIdle is used by the decay timer when samples have stopped arriving.
func (m *MovementTracker) ForceIdle(now time.Time) bool {
	if m.state != Moving {
		return false
	}
	m.state = Idle
	m.lastTransition = now
	return true
}

func (m *MovementTracker) State() MovementState {
	return m.state
}

func (m *MovementTracker) Status() MovementStatus {
	return MovementStatus{State: m.state, LastTransition: m.lastTransition}
}
