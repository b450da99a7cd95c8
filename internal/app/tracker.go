// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/step_tracker/internal/broker"
	"github.com/relabs-tech/step_tracker/internal/config"
	"github.com/relabs-tech/step_tracker/internal/pedometer"
	"github.com/relabs-tech/step_tracker/internal/sensors"
	"github.com/relabs-tech/step_tracker/internal/store"
)

// RunTracker wires the configured sensor source and store into an engine
// and attaches the MQTT, web and display sinks. It blocks until ctx is done
// and then shuts everything down, persisting the final count.
func RunTracker(ctx context.Context, cfg *config.Config, staticDir string, log *slog.Logger) error {
	backend, err := store.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	src, err := sensors.New(cfg, log)
	if err != nil {
		return err
	}

	engine, err := pedometer.New(cfg.Engine(), src, backend, pedometer.WithLogger(log))
	if err != nil {
		return err
	}

	sinkCtx, stopSinks := context.WithCancel(ctx)
	defer stopSinks()
	var wg sync.WaitGroup

	// Sinks subscribe before Start so they see the initial state.
	if cfg.MQTTBroker != "" && cfg.TopicSteps != "" {
		client, err := broker.Connect(broker.ClientConfig{Broker: cfg.MQTTBroker, ClientID: cfg.MQTTClientID}, log)
		if err != nil {
			log.Warn("tracker: MQTT unavailable, updates will not be published", "err", err)
		} else {
			defer client.Close()
			updates, cancel := engine.Subscribe(64)
			defer cancel()
			wg.Add(1)
			go func() {
				defer wg.Done()
				PublishUpdates(sinkCtx, client, cfg.TopicSteps, updates, log)
			}()
		}
	}

	if cfg.DisplayEnabled {
		display, err := OpenDisplay(time.Duration(cfg.DisplayUpdateIntervalMS)*time.Millisecond, log)
		if err != nil {
			log.Warn("tracker: display unavailable", "err", err)
		} else {
			defer display.Close()
			updates, cancel := engine.Subscribe(8)
			defer cancel()
			wg.Add(1)
			go func() {
				defer wg.Done()
				display.Run(sinkCtx, updates)
			}()
		}
	}

	if err := engine.Start(ctx); err != nil {
		stopSinks()
		wg.Wait()
		return fmt.Errorf("start engine: %w", err)
	}

	var history store.History
	if h, ok := backend.(store.History); ok {
		history = h
	}
	web := NewWebServer(engine, history, staticDir, log)

	webErr := make(chan error, 1)
	if cfg.WebServerPort > 0 {
		go func() { webErr <- web.ListenAndServe(sinkCtx, cfg.WebServerPort) }()
	}

	select {
	case <-ctx.Done():
		err = nil
	case err = <-webErr:
		err = fmt.Errorf("web server: %w", err)
	}

	log.Info("tracker: shutting down")
	stopSinks()
	stopErr := engine.Stop()
	wg.Wait()

	return errors.Join(err, stopErr)
}
