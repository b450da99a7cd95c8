// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "time"

// Raw is a single accelerometer reading in sensor counts, as published on
// MQTT by the IMU producer.
type Raw struct {
	Source string `json:"source"`

	Ax int16 `json:"ax"`
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	// TimeMs is the producer's wall clock in Unix milliseconds. Zero means
	// the receiver should stamp the sample on arrival.
	TimeMs int64 `json:"time_ms,omitempty"`
}

// countsPerG maps the MPU9250 ACCEL_FS_SEL setting (0=±2g .. 3=±16g) to
// the sensitivity in LSB/g.
var countsPerG = [4]float64{16384, 8192, 4096, 2048}

// CountsPerG returns the accelerometer sensitivity for an ACCEL_FS_SEL value.
// Out of range values fall back to ±2g.
func CountsPerG(accelRange byte) float64 {
	if int(accelRange) >= len(countsPerG) {
		return countsPerG[0]
	}
	return countsPerG[accelRange]
}

// ToSample converts counts to g using the given accelerometer range.
// received is used when the producer did not stamp the reading.
func (r Raw) ToSample(accelRange byte, received time.Time) Sample {
	scale := CountsPerG(accelRange)
	ts := received
	if r.TimeMs != 0 {
		ts = time.UnixMilli(r.TimeMs)
	}
	return Sample{
		X:         float64(r.Ax) / scale,
		Y:         float64(r.Ay) / scale,
		Z:         float64(r.Az) / scale,
		Timestamp: ts,
	}
}
