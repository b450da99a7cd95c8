// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/relabs-tech/step_tracker/internal/broker"
	"github.com/relabs-tech/step_tracker/internal/config"
	"github.com/relabs-tech/step_tracker/internal/imu"
	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// RunConsoleMQTT prints tracker updates, and optionally the raw IMU stream,
// until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, showRaw bool, out io.Writer, log *slog.Logger) error {
	client, err := broker.Connect(broker.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID + "-console",
		UniqueID: true,
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	err = broker.SubscribeJSON(client, cfg.TopicSteps, func(u pedometer.Update) {
		fmt.Fprintln(out, FormatUpdate(u))
	})
	if err != nil {
		return err
	}

	if showRaw {
		err = broker.SubscribeJSON(client, cfg.TopicIMURaw, func(r imu.Raw) {
			fmt.Fprintf(out, "[IMU ] %-8s ax=%6d ay=%6d az=%6d\n", r.Source, r.Ax, r.Ay, r.Az)
		})
		if err != nil {
			return err
		}
	}

	<-ctx.Done()
	log.Info("console: shutting down")
	return nil
}

// FormatUpdate renders one update as a console line.
func FormatUpdate(u pedometer.Update) string {
	moving := "idle  "
	if u.IsMoving {
		moving = "moving"
	}
	line := fmt.Sprintf("[STEP] %s steps=%6d pending=%3d kcal=%4d goal=%5.1f%% %s (%s)",
		u.Date, u.StepCount, u.PendingSteps, u.Calories, u.GoalProgress*100, moving, u.Reason)
	if !u.SensorAvailable {
		line += " [no sensor]"
	}
	return line
}
