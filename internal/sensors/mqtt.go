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

	"github.com/relabs-tech/step_tracker/internal/broker"
	"github.com/relabs-tech/step_tracker/internal/imu"
)

// MQTTSource receives imu.Raw JSON published by a remote IMU producer.
type MQTTSource struct {
	cfg        broker.ClientConfig
	topic      string
	accelRange byte
	log        *slog.Logger

	mu     sync.Mutex
	client *broker.Client
	active bool
}

func NewMQTTSource(cfg broker.ClientConfig, topic string, accelRange byte, log *slog.Logger) *MQTTSource {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTSource{cfg: cfg, topic: topic, accelRange: accelRange, log: log}
}

func (s *MQTTSource) Name() string { return "mqtt" }

func (s *MQTTSource) Start(ctx context.Context, fn func(imu.Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return errAlreadyStarted
	}

	client, err := broker.Connect(s.cfg, s.log)
	if err != nil {
		return err
	}

	s.active = true
	err = broker.SubscribeJSON(client, s.topic, func(raw imu.Raw) {
		s.mu.Lock()
		active := s.active
		s.mu.Unlock()
		if !active {
			return
		}
		fn(raw.ToSample(s.accelRange, time.Now()))
	})
	if err != nil {
		client.Close()
		s.active = false
		return fmt.Errorf("imu topic: %w", err)
	}

	s.client = client
	return nil
}

func (s *MQTTSource) Stop() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.active = false
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	err := client.Unsubscribe(s.topic)
	client.Close()
	return err
}
