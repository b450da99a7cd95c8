// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// persister writes records on its own goroutine so store latency never
// reaches the sample path. Consecutive writes for the same date collapse
// into the latest one; a write for a new date never replaces the last
// write of the previous day.
type persister struct {
	store   Store
	key     string
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	queue  []DailyStepRecord
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newPersister(store Store, key string, timeout time.Duration, log *slog.Logger) *persister {
	p := &persister{
		store:   store,
		key:     key,
		timeout: timeout,
		log:     log,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) schedule(rec DailyStepRecord) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if n := len(p.queue); n > 0 && p.queue[n-1].Date == rec.Date {
		p.queue[n-1] = rec
	} else {
		p.queue = append(p.queue, rec)
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		closed := p.closed
		p.mu.Unlock()

		for _, rec := range batch {
			p.write(rec)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-p.wake
		}
	}
}

func (p *persister) write(rec DailyStepRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.store.Set(ctx, p.key, rec); err != nil {
		werr := &Error{Kind: KindPersistenceWrite, Op: "save " + rec.Date, Err: err}
		p.log.Warn("pedometer: persist failed", "date", rec.Date, "steps", rec.StepCount, "err", werr)
	}
}

// close drains queued writes and stops the writer.
func (p *persister) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	<-p.done
}
