// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pedometer

import (
	"sync"
	"time"
)

// Reason says what produced an Update.
type Reason string

const (
	ReasonLoad     Reason = "load"
	ReasonStep     Reason = "step"
	ReasonMovement Reason = "movement"
	ReasonFlush    Reason = "flush"
	ReasonReset    Reason = "reset"
	ReasonAdd      Reason = "add"
	ReasonRollover Reason = "rollover"
	ReasonSensor   Reason = "sensor"
)

// Update is the state pushed to listeners.
type Update struct {
	StepCount       int       `json:"step_count"`
	PendingSteps    int       `json:"pending_steps"`
	IsMoving        bool      `json:"is_moving"`
	Calories        int       `json:"calories"`
	Date            string    `json:"date"`
	Goal            int       `json:"goal"`
	GoalProgress    float64   `json:"goal_progress"`
	Calibrated      bool      `json:"calibrated"`
	SensorAvailable bool      `json:"sensor_available"`
	Reason          Reason    `json:"reason"`
	Time            time.Time `json:"time"`
}

// broadcaster fans updates out to subscriber channels. Sends never block:
// a subscriber that falls behind loses its oldest queued update.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Update
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Update)}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broadcaster) publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}
