// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log/slog"

	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// JSONPublisher is satisfied by *broker.Client.
type JSONPublisher interface {
	PublishJSON(topic string, retained bool, v any) error
}

// PublishUpdates forwards engine updates to topic as retained JSON, so a
// console that connects later still sees the current count. It returns when
// ctx is done or the channel closes.
func PublishUpdates(ctx context.Context, pub JSONPublisher, topic string, updates <-chan pedometer.Update, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := pub.PublishJSON(topic, true, u); err != nil {
				log.Warn("publisher: MQTT publish error", "topic", topic, "err", err)
				continue
			}
			log.Debug("publisher: update sent", "reason", u.Reason, "steps", u.StepCount)
		}
	}
}
