// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// SQLiteStore keeps the current record per key and one row per day, so
// closed days stay queryable after rollover.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS step_records (
		key          TEXT PRIMARY KEY,
		date         TEXT NOT NULL,
		steps        INTEGER NOT NULL,
		calories     INTEGER NOT NULL,
		last_update  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS daily_steps (
		date         TEXT PRIMARY KEY,
		steps        INTEGER NOT NULL,
		calories     INTEGER NOT NULL,
		last_update  INTEGER NOT NULL
	);
`

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; the persister is the only one anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*pedometer.DailyStepRecord, error) {
	var (
		rec    pedometer.DailyStepRecord
		lastNs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT date, steps, calories, last_update FROM step_records WHERE key = ?`, key,
	).Scan(&rec.Date, &rec.StepCount, &rec.Calories, &lastNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	rec.LastUpdate = time.Unix(0, lastNs)
	return &rec, nil
}

// Set writes the current record and its day row in one transaction.
func (s *SQLiteStore) Set(ctx context.Context, key string, rec pedometer.DailyStepRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	lastNs := rec.LastUpdate.UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO step_records (key, date, steps, calories, last_update)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			date = excluded.date,
			steps = excluded.steps,
			calories = excluded.calories,
			last_update = excluded.last_update`,
		key, rec.Date, rec.StepCount, rec.Calories, lastNs,
	); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_steps (date, steps, calories, last_update)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			steps = excluded.steps,
			calories = excluded.calories,
			last_update = excluded.last_update`,
		rec.Date, rec.StepCount, rec.Calories, lastNs,
	); err != nil {
		return fmt.Errorf("record day %s: %w", rec.Date, err)
	}

	return tx.Commit()
}

// History returns up to limit days, most recent first. limit <= 0 means all.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]pedometer.DailyStepRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, steps, calories, last_update FROM daily_steps ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pedometer.DailyStepRecord
	for rows.Next() {
		var (
			rec    pedometer.DailyStepRecord
			lastNs int64
		)
		if err := rows.Scan(&rec.Date, &rec.StepCount, &rec.Calories, &lastNs); err != nil {
			return nil, err
		}
		rec.LastUpdate = time.Unix(0, lastNs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
