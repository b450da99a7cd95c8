// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// MemoryStore keeps records for the life of the process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]pedometer.DailyStepRecord
	days    map[string]pedometer.DailyStepRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]pedometer.DailyStepRecord),
		days:    make(map[string]pedometer.DailyStepRecord),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*pedometer.DailyStepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, rec pedometer.DailyStepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = rec
	m.days[rec.Date] = rec
	return nil
}

// History returns the most recent days first.
func (m *MemoryStore) History(_ context.Context, limit int) ([]pedometer.DailyStepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pedometer.DailyStepRecord, 0, len(m.days))
	for _, rec := range m.days {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
