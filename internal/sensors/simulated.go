// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

// gaitPulse is the vertical acceleration of one footfall in g above rest,
// one value per sample.
var gaitPulse = []float64{1.2, 2.0, 1.2}

// Gait synthesises accelerometer samples of someone walking with the device
// lying flat: a rest period, then one pulse per cadence period on Z, with
// Gaussian noise on every axis.
type Gait struct {
	Interval time.Duration
	Cadence  time.Duration
	Warmup   time.Duration
	Noise    float64

	rng     *rand.Rand
	elapsed time.Duration
}

// NewGait returns a deterministic generator for the given seed.
func NewGait(interval, cadence, warmup time.Duration, noise float64, seed int64) *Gait {
	return &Gait{
		Interval: interval,
		Cadence:  cadence,
		Warmup:   warmup,
		Noise:    noise,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Next returns the sample for the current step of the generator and
// advances it by one interval.
func (g *Gait) Next() imu.Vec3 {
	v := imu.Vec3{Z: 1}
	if t := g.elapsed - g.Warmup; t >= 0 && g.Cadence > 0 {
		k := int((t % g.Cadence) / g.Interval)
		if k < len(gaitPulse) {
			v.Z += gaitPulse[k]
			v.X += 0.1 * gaitPulse[k] // sway
		}
	}
	if g.Noise > 0 {
		v.X += g.rng.NormFloat64() * g.Noise
		v.Y += g.rng.NormFloat64() * g.Noise
		v.Z += g.rng.NormFloat64() * g.Noise
	}
	g.elapsed += g.Interval
	return v
}

// SimulatedSource emits Gait samples on a ticker. It stands in for a real
// sensor on machines without one.
type SimulatedSource struct {
	gait     *Gait
	interval time.Duration
	log      *slog.Logger
	loop     loop
}

func NewSimulatedSource(gait *Gait, log *slog.Logger) *SimulatedSource {
	if log == nil {
		log = slog.Default()
	}
	return &SimulatedSource{gait: gait, interval: gait.Interval, log: log}
}

func (s *SimulatedSource) Name() string { return "simulated" }

func (s *SimulatedSource) Start(ctx context.Context, fn func(imu.Sample)) error {
	s.log.Info("sensors: simulated gait",
		"interval", s.interval, "cadence", s.gait.Cadence, "warmup", s.gait.Warmup, "noise", s.gait.Noise)

	return s.loop.start(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				v := s.gait.Next()
				fn(imu.Sample{X: v.X, Y: v.Y, Z: v.Z, Timestamp: t})
			}
		}
	})
}

func (s *SimulatedSource) Stop() error {
	s.loop.stop()
	return nil
}
