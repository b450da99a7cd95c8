// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors provides the accelerometer sources the pedometer can run
// on: a simulated walker, an MPU9250 on SPI, a remote producer over MQTT
// and a microcontroller on a serial port.
package sensors

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/relabs-tech/step_tracker/internal/broker"
	"github.com/relabs-tech/step_tracker/internal/config"
	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// New builds the source selected by SENSOR_SOURCE.
func New(cfg *config.Config, log *slog.Logger) (pedometer.Source, error) {
	switch cfg.SensorSource {
	case config.SourceSimulated:
		interval := cfg.SampleInterval()
		// Stay still long enough for the engine to calibrate.
		warmup := time.Duration(cfg.CalibrationSample+5) * interval
		gait := NewGait(interval, time.Duration(cfg.SimCadenceMS)*time.Millisecond, warmup, cfg.SimNoise, time.Now().UnixNano())
		return NewSimulatedSource(gait, log), nil

	case config.SourceMPU9250:
		return NewMPU9250Source(MPU9250Config{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			Interval:   cfg.SampleInterval(),
		}, log), nil

	case config.SourceMQTT:
		return NewMQTTSource(broker.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID + "-imu",
			UniqueID: true,
		}, cfg.TopicIMURaw, cfg.IMUAccelRange, log), nil

	case config.SourceSerial:
		return NewSerialSource(SerialConfig{
			PortName: cfg.SerialPort,
			BaudRate: uint(cfg.SerialBaudRate),
		}, log), nil
	}
	return nil, fmt.Errorf("unknown sensor source %q", cfg.SensorSource)
}
