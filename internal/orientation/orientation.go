// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

// Pose is the device tilt derived from the gravity vector.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

// FromGravity computes roll and pitch from an accelerometer reading that is
// dominated by gravity:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func FromGravity(g imu.Vec3) Pose {
	rollRad := math.Atan2(g.Y, g.Z)
	pitchRad := math.Atan2(-g.X, math.Sqrt(g.Y*g.Y+g.Z*g.Z))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}

// AngleBetween returns the angle in degrees between two vectors, or 0 when
// either is zero.
func AngleBetween(a, b imu.Vec3) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	cos := (a.X*b.X + a.Y*b.Y + a.Z*b.Z) / (na * nb)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180.0 / math.Pi
}

// GravityFilter is a first-order low-pass used to follow the slow gravity
// component while the device is being carried.
type GravityFilter struct {
	Alpha float64
	g     imu.Vec3
	ready bool
}

// Update folds v into the estimate and returns it.
func (f *GravityFilter) Update(v imu.Vec3) imu.Vec3 {
	if !f.ready {
		f.g = v
		f.ready = true
		return f.g
	}
	a := f.Alpha
	f.g.X += a * (v.X - f.g.X)
	f.g.Y += a * (v.Y - f.g.Y)
	f.g.Z += a * (v.Z - f.g.Z)
	return f.g
}

// Reset drops the current estimate.
func (f *GravityFilter) Reset() {
	f.g = imu.Vec3{}
	f.ready = false
}
