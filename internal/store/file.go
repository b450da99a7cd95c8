// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// FileStore keeps a JSON object of key -> record in one file. Writes go to
// a temporary file that is renamed over the original, so a crash leaves
// either the old or the new content.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) readAll() (map[string]pedometer.DailyStepRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]pedometer.DailyStepRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	all := map[string]pedometer.DailyStepRecord{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return all, nil
}

func (f *FileStore) Get(_ context.Context, key string) (*pedometer.DailyStepRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readAll()
	if err != nil {
		return nil, err
	}
	rec, ok := all[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *FileStore) Set(ctx context.Context, key string, rec pedometer.DailyStepRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.readAll()
	if err != nil {
		// A corrupt file must not block new writes.
		all = map[string]pedometer.DailyStepRecord{}
	}
	all[key] = rec

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
