// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"errors"
	"fmt"
)

// Kind categorises the failures the engine degrades around.
type Kind string

const (
	KindSensorUnavailable Kind = "SENSOR_UNAVAILABLE"
	KindPersistenceRead   Kind = "PERSISTENCE_READ_FAILURE"
	KindPersistenceWrite  Kind = "PERSISTENCE_WRITE_FAILURE"
)

var (
	ErrSensorUnavailable = errors.New("sensor unavailable")
	ErrPersistenceRead   = errors.New("persistence read failed")
	ErrPersistenceWrite  = errors.New("persistence write failed")

	ErrNotRunning     = errors.New("engine not running")
	ErrAlreadyRunning = errors.New("engine already running")
	ErrInvalidSteps   = errors.New("step count must be positive")
)

// Error is a categorised engine failure. errors.Is matches it against the
// sentinel of its kind as well as the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindSensorUnavailable:
		return target == ErrSensorUnavailable
	case KindPersistenceRead:
		return target == ErrPersistenceRead
	case KindPersistenceWrite:
		return target == ErrPersistenceWrite
	}
	return false
}
