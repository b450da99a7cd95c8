// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store persists the pedometer's daily record.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relabs-tech/step_tracker/internal/config"
	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// Backend is a pedometer.Store that holds resources.
type Backend interface {
	pedometer.Store
	Close() error
}

// History is implemented by backends that keep every closed day, not only
// the current record.
type History interface {
	History(ctx context.Context, limit int) ([]pedometer.DailyStepRecord, error)
}

var (
	_ Backend = (*FileStore)(nil)
	_ Backend = (*SQLiteStore)(nil)
	_ Backend = (*FirestoreStore)(nil)
	_ Backend = (*MemoryStore)(nil)

	_ History = (*SQLiteStore)(nil)
	_ History = (*FirestoreStore)(nil)
	_ History = (*MemoryStore)(nil)
)

// New opens the backend selected by STORE_BACKEND.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	var (
		b   Backend
		err error
	)
	switch cfg.StoreBackend {
	case config.StoreFile:
		b, err = NewFileStore(cfg.StorePath)
	case config.StoreSQLite:
		b, err = NewSQLiteStore(cfg.StorePath)
	case config.StoreFirestore:
		b, err = NewFirestoreStore(ctx, cfg.FirestoreProject, cfg.FirestoreCollection, cfg.StoreKey)
	case config.StoreMemory:
		b = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s store: %w", cfg.StoreBackend, err)
	}
	log.Info("store: opened", "backend", cfg.StoreBackend, "path", cfg.StorePath)
	return b, nil
}
