// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/step_tracker/internal/imu"
)

// SerialConfig selects the port a microcontroller streams samples on.
type SerialConfig struct {
	PortName string
	BaudRate uint
}

// SerialSource reads one sample per line from a serial port:
//
//	x,y,z[,unix_ms]
//
// with acceleration in g. Lines starting with '#' and blank lines are
// skipped; malformed lines are logged and dropped.
type SerialSource struct {
	cfg SerialConfig
	log *slog.Logger

	mu   sync.Mutex
	port io.ReadWriteCloser
	loop loop
}

func NewSerialSource(cfg SerialConfig, log *slog.Logger) *SerialSource {
	if log == nil {
		log = slog.Default()
	}
	return &SerialSource{cfg: cfg, log: log}
}

func (s *SerialSource) Name() string { return "serial" }

func (s *SerialSource) Start(ctx context.Context, fn func(imu.Sample)) error {
	s.mu.Lock()
	open := s.port != nil
	s.mu.Unlock()
	if open {
		return errAlreadyStarted
	}

	opts := serial.OpenOptions{
		PortName:              s.cfg.PortName,
		BaudRate:              s.cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("serial %s: %w", s.cfg.PortName, err)
	}
	s.log.Info("serial: port opened", "port", opts.PortName, "baud", opts.BaudRate)

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	return s.loop.start(ctx, func(ctx context.Context) {
		s.readLines(ctx, port, fn)
	})
}

func (s *SerialSource) readLines(ctx context.Context, r io.Reader, fn func(imu.Sample)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sample, err := ParseLine(line, time.Now())
		if err != nil {
			s.log.Debug("serial: dropped line", "line", line, "err", err)
			continue
		}
		fn(sample)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Warn("serial: read error", "err", err)
	}
}

// Stop closes the port, which unblocks the reader.
func (s *SerialSource) Stop() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}
	s.loop.stop()
	return err
}

// ParseLine decodes "x,y,z" or "x,y,z,unix_ms". received stamps samples
// that carry no time.
func ParseLine(line string, received time.Time) (imu.Sample, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 && len(fields) != 4 {
		return imu.Sample{}, fmt.Errorf("want 3 or 4 fields, got %d", len(fields))
	}

	var axes [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return imu.Sample{}, fmt.Errorf("axis %d: %w", i, err)
		}
		axes[i] = v
	}

	ts := received
	if len(fields) == 4 {
		ms, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
		if err != nil {
			return imu.Sample{}, fmt.Errorf("timestamp: %w", err)
		}
		ts = time.UnixMilli(ms)
	}

	return imu.Sample{X: axes[0], Y: axes[1], Z: axes[2], Timestamp: ts}, nil
}
