// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

// accelRangeG is the full scale of each ACCEL_FS_SEL value, for logging.
var accelRangeG = []int{2, 4, 8, 16}

// MPU9250Config selects the SPI device and accelerometer range.
type MPU9250Config struct {
	SPIDevice  string
	CSPin      string
	AccelRange byte
	Interval   time.Duration
}

// MPU9250Source polls the accelerometer of an MPU9250 over SPI.
type MPU9250Source struct {
	cfg MPU9250Config
	log *slog.Logger

	mu   sync.Mutex
	dev  *mpu9250.MPU9250
	loop loop
}

func NewMPU9250Source(cfg MPU9250Config, log *slog.Logger) *MPU9250Source {
	if log == nil {
		log = slog.Default()
	}
	return &MPU9250Source{cfg: cfg, log: log}
}

func (s *MPU9250Source) Name() string { return "mpu9250" }

// Open initialises the device once. Later calls are no-ops.
func (s *MPU9250Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev != nil {
		return nil
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(s.cfg.CSPin)
	if cs == nil {
		return fmt.Errorf("IMU: CS pin %q not found", s.cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(s.cfg.SPIDevice, cs)
	if err != nil {
		return fmt.Errorf("IMU: SPI transport (%s): %w", s.cfg.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return fmt.Errorf("IMU: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := dev.SetAccelRange(s.cfg.AccelRange); err != nil {
		return fmt.Errorf("IMU: set accel range: %w", err)
	}
	s.log.Info("IMU: accelerometer range set",
		"range", s.cfg.AccelRange, "g", accelRangeG[s.cfg.AccelRange&3])

	if res, err := dev.SelfTest(); err != nil {
		s.log.Warn("IMU: self-test failed", "err", err)
	} else {
		s.log.Info("IMU: self-test passed",
			"accel_dev_x", res.AccelDeviation.X, "accel_dev_y", res.AccelDeviation.Y, "accel_dev_z", res.AccelDeviation.Z)
	}

	// The chip calibration only removes register offsets; the pedometer
	// still computes its own resting baseline.
	if err := dev.Calibrate(); err != nil {
		s.log.Warn("IMU: calibration failed", "err", err)
	}

	s.dev = dev
	return nil
}

// ReadRaw reads one accelerometer triple in counts.
func (s *MPU9250Source) ReadRaw() (imu.Raw, error) {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()
	if dev == nil {
		return imu.Raw{}, fmt.Errorf("IMU: not open")
	}

	ax, err := dev.GetAccelerationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := dev.GetAccelerationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := dev.GetAccelerationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	return imu.Raw{Source: s.Name(), Ax: ax, Ay: ay, Az: az}, nil
}

// Start opens the device if needed and polls it every interval. Read
// errors are logged and the sample skipped.
func (s *MPU9250Source) Start(ctx context.Context, fn func(imu.Sample)) error {
	if err := s.Open(); err != nil {
		return err
	}

	return s.loop.start(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				raw, err := s.ReadRaw()
				if err != nil {
					s.log.Warn("IMU: read failed", "err", err)
					continue
				}
				fn(raw.ToSample(s.cfg.AccelRange, t))
			}
		}
	})
}

func (s *MPU9250Source) Stop() error {
	s.loop.stop()
	return nil
}
