// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/relabs-tech/step_tracker/internal/broker"
	"github.com/relabs-tech/step_tracker/internal/config"
	"github.com/relabs-tech/step_tracker/internal/imu"
	"github.com/relabs-tech/step_tracker/internal/sensors"
)

// rawReader is satisfied by *sensors.MPU9250Source.
type rawReader interface {
	ReadRaw() (imu.Raw, error)
}

// RunIMUProducer reads the MPU9250 every SAMPLE_INTERVAL_MS and publishes
// the raw counts on TOPIC_IMU_RAW for a tracker running elsewhere.
func RunIMUProducer(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting IMU producer", "topic", cfg.TopicIMURaw, "interval", cfg.SampleInterval())

	dev := sensors.NewMPU9250Source(sensors.MPU9250Config{
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		Interval:   cfg.SampleInterval(),
	}, log)
	if err := dev.Open(); err != nil {
		return err
	}

	client, err := broker.Connect(broker.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID + "-producer",
		UniqueID: true,
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	produceIMU(ctx, dev, client, cfg.TopicIMURaw, cfg.SampleInterval(), log)
	return nil
}

// produceIMU is the publish loop. It logs a summary every few seconds
// rather than every sample.
func produceIMU(ctx context.Context, dev rawReader, pub JSONPublisher, topic string, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logEvery := int(5 * time.Second / interval)
	if logEvery < 1 {
		logEvery = 1
	}

	var sent, failed int
	for {
		select {
		case <-ctx.Done():
			log.Info("IMU producer stopped", "sent", sent, "failed", failed)
			return
		case t := <-ticker.C:
			raw, err := dev.ReadRaw()
			if err != nil {
				failed++
				log.Warn("error reading IMU", "err", err)
				continue
			}
			raw.TimeMs = t.UnixMilli()

			if err := pub.PublishJSON(topic, false, raw); err != nil {
				failed++
				log.Warn("MQTT publish error (imu/raw)", "err", err)
				continue
			}
			sent++
			if sent%logEvery == 0 {
				log.Info("IMU tick", "ax", raw.Ax, "ay", raw.Ay, "az", raw.Az, "sent", sent, "failed", failed)
			}
		}
	}
}
