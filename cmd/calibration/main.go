// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Captures the same stillness window the tracker uses at startup and reports
// the resting baseline, its noise and the device pose. Use it to check a
// mounting position before leaving the tracker running.
//
// Run:
//
//	go run ./cmd/calibration -config tracker_config.txt -out calibration.json
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/step_tracker/internal/app"
	"github.com/relabs-tech/step_tracker/internal/config"
	"github.com/relabs-tech/step_tracker/internal/sensors"
)

func main() {
	configPath := flag.String("config", "./tracker_config.txt", "path to configuration file")
	out := flag.String("out", "./step_calibration.json", "where to write the report")
	timeout := flag.Duration("timeout", 30*time.Second, "give up after this long")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg := config.Get()
	log := app.NewLogger(os.Stderr, cfg.LogLevel)

	src, err := sensors.New(cfg, log)
	if err != nil {
		fatal(err)
	}

	fmt.Println("=== Step tracker calibration ===")
	fmt.Printf("Source: %s, window: %d samples\n", src.Name(), cfg.CalibrationSample)
	fmt.Println("Place the device in its usual position and keep it still.")
	fmt.Print("Press ENTER to start...")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := app.CaptureCalibration(ctx, src, cfg.CalibrationSample, *timeout, log)
	if err != nil {
		fatal(err)
	}

	fmt.Println()
	fmt.Printf("Baseline:   x=%+.4f y=%+.4f z=%+.4f g\n", rep.Baseline.X, rep.Baseline.Y, rep.Baseline.Z)
	fmt.Printf("Std dev:    x=%.4f y=%.4f z=%.4f g\n", rep.StdDev.X, rep.StdDev.Y, rep.StdDev.Z)
	fmt.Printf("Pose:       roll=%.1f° pitch=%.1f°\n", rep.Pose.Roll, rep.Pose.Pitch)
	fmt.Printf("Confidence: %.2f\n", rep.Confidence)
	for _, n := range rep.Notes {
		fmt.Println("Note:", n)
	}

	if err := app.WriteCalibrationReport(*out, rep); err != nil {
		fatal(err)
	}
	fmt.Printf("\nSaved %s\n", *out)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
