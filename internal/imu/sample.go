// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"time"
)

// Sample is one 3-axis acceleration reading in g.
type Sample struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Timestamp time.Time `json:"timestamp"`
}

// Vec3 is a per-axis triple, used for baselines and statistics.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec returns the acceleration part of the sample.
func (s Sample) Vec() Vec3 {
	return Vec3{X: s.X, Y: s.Y, Z: s.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Norm is the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// AbsSum is |x| + |y| + |z|.
func (v Vec3) AbsSum() float64 {
	return math.Abs(v.X) + math.Abs(v.Y) + math.Abs(v.Z)
}
