// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/relabs-tech/step_tracker/internal/imu"
	"github.com/relabs-tech/step_tracker/internal/orientation"
	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// CalibrationReport is what the calibration tool writes to disk. It lets
// the operator check that the device rests still enough, and in which
// pose, before the tracker relies on the same window at startup.
type CalibrationReport struct {
	SchemaVersion int              `json:"schema_version"`
	CalibrationAt string           `json:"calibration_at"` // RFC3339
	Source        string           `json:"source"`
	Samples       int              `json:"samples"`
	Baseline      imu.Vec3         `json:"baseline"`
	StdDev        imu.Vec3         `json:"stddev"`
	Confidence    float64          `json:"confidence"`
	Pose          orientation.Pose `json:"pose"`
	Notes         []string         `json:"notes,omitempty"`
}

// CaptureCalibration runs src until window samples have been averaged, or
// until timeout elapses.
func CaptureCalibration(ctx context.Context, src pedometer.Source, window int, timeout time.Duration, log *slog.Logger) (CalibrationReport, error) {
	if window <= 0 {
		return CalibrationReport{}, errors.New("calibration window must be positive")
	}

	cal := pedometer.NewCalibrator(window)
	done := make(chan struct{})
	// Sources call fn from a single goroutine.
	fn := func(s imu.Sample) {
		if cal.Add(s.Vec()) {
			close(done)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info("calibration: capturing", "source", src.Name(), "samples", window)
	if err := src.Start(ctx, fn); err != nil {
		return CalibrationReport{}, &pedometer.Error{Kind: pedometer.KindSensorUnavailable, Op: "calibrate", Err: err}
	}

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("calibration: %w", ctx.Err())
	}
	if err := src.Stop(); err != nil {
		log.Warn("calibration: source stop failed", "err", err)
	}
	if waitErr != nil {
		return CalibrationReport{}, waitErr
	}

	state := cal.State()
	std := cal.StdDev()
	rep := CalibrationReport{
		SchemaVersion: 1,
		CalibrationAt: time.Now().Format(time.RFC3339),
		Source:        src.Name(),
		Samples:       state.SampleCount,
		Baseline:      state.Baseline,
		StdDev:        std,
		Confidence:    pedometer.StillnessConfidence(std),
		Pose:          orientation.FromGravity(state.Baseline),
	}
	if rep.Confidence < 0.5 {
		rep.Notes = append(rep.Notes, "device moved during capture, repeat on a stable surface")
	}
	if g := state.Baseline.Norm(); g < 0.8 || g > 1.2 {
		rep.Notes = append(rep.Notes, fmt.Sprintf("baseline magnitude %.2fg is far from 1g, check ACCEL range", g))
	}
	return rep, nil
}

// WriteCalibrationReport stores rep as indented JSON.
func WriteCalibrationReport(path string, rep CalibrationReport) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
