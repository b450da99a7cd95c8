// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_tracker/internal/imu"
	"github.com/relabs-tech/step_tracker/internal/pedometer"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubTracker struct {
	mu      sync.Mutex
	state   pedometer.Update
	added   []int
	resets  int
	addErr  error
	updates chan pedometer.Update
}

func newStubTracker() *stubTracker {
	return &stubTracker{
		state:   pedometer.Update{StepCount: 120, Date: "2026-03-14", Goal: 10000, SensorAvailable: true, Calibrated: true},
		updates: make(chan pedometer.Update, 4),
	}
}

func (s *stubTracker) Snapshot() pedometer.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubTracker) ResetStepCount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.state.StepCount = 0
	return nil
}

func (s *stubTracker) AddSteps(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	if n <= 0 {
		return pedometer.ErrInvalidSteps
	}
	s.added = append(s.added, n)
	s.state.StepCount += n
	return nil
}

func (s *stubTracker) Subscribe(int) (<-chan pedometer.Update, func()) {
	return s.updates, func() {}
}

type stubHistory struct {
	days  []pedometer.DailyStepRecord
	limit int
}

func (h *stubHistory) History(_ context.Context, limit int) ([]pedometer.DailyStepRecord, error) {
	h.limit = limit
	return h.days, nil
}

func do(t *testing.T, srv http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeUpdate(t *testing.T, rec *httptest.ResponseRecorder) pedometer.Update {
	t.Helper()
	var u pedometer.Update
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&u))
	return u
}

func TestWebGetSteps(t *testing.T) {
	srv := NewWebServer(newStubTracker(), nil, "", quietLogger())

	rec := do(t, srv, http.MethodGet, "/api/steps")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 120, decodeUpdate(t, rec).StepCount)
}

func TestWebReset(t *testing.T) {
	tr := newStubTracker()
	srv := NewWebServer(tr, nil, "", quietLogger())

	rec := do(t, srv, http.MethodPost, "/api/steps/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeUpdate(t, rec).StepCount)
	assert.Equal(t, 1, tr.resets)

	rec = do(t, srv, http.MethodGet, "/api/steps/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebAddSteps(t *testing.T) {
	tr := newStubTracker()
	srv := NewWebServer(tr, nil, "", quietLogger())

	rec := do(t, srv, http.MethodPost, "/api/steps/add?n=30")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 150, decodeUpdate(t, rec).StepCount)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/steps/add?n=abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/steps/add").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/steps/add?n=-2").Code)
	assert.Equal(t, []int{30}, tr.added)

	tr.addErr = pedometer.ErrNotRunning
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodPost, "/api/steps/add?n=1").Code)
}

func TestCommandStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, commandStatus(pedometer.ErrInvalidSteps))
	assert.Equal(t, http.StatusServiceUnavailable, commandStatus(pedometer.ErrNotRunning))
	assert.Equal(t, http.StatusInternalServerError, commandStatus(errors.New("disk on fire")))
}

func TestWebHistory(t *testing.T) {
	t.Run("no history", func(t *testing.T) {
		srv := NewWebServer(newStubTracker(), nil, "", quietLogger())
		assert.Equal(t, http.StatusNotImplemented, do(t, srv, http.MethodGet, "/api/history").Code)
	})

	t.Run("default limit", func(t *testing.T) {
		h := &stubHistory{days: []pedometer.DailyStepRecord{
			{Date: "2026-03-14", StepCount: 512},
			{Date: "2026-03-13", StepCount: 9001},
		}}
		srv := NewWebServer(newStubTracker(), h, "", quietLogger())

		rec := do(t, srv, http.MethodGet, "/api/history")
		require.Equal(t, http.StatusOK, rec.Code)
		var days []pedometer.DailyStepRecord
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&days))
		assert.Equal(t, h.days, days)
		assert.Equal(t, 30, h.limit)
	})

	t.Run("explicit limit", func(t *testing.T) {
		h := &stubHistory{}
		srv := NewWebServer(newStubTracker(), h, "", quietLogger())

		rec := do(t, srv, http.MethodGet, "/api/history?days=7")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
		assert.Equal(t, 7, h.limit)

		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/history?days=-1").Code)
	})
}

func TestWebSocketStream(t *testing.T) {
	tr := newStubTracker()
	ts := httptest.NewServer(NewWebServer(tr, nil, "", quietLogger()))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first pedometer.Update
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 120, first.StepCount)

	tr.updates <- pedometer.Update{StepCount: 121, IsMoving: true, Reason: pedometer.ReasonStep}

	var next pedometer.Update
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, 121, next.StepCount)
	assert.True(t, next.IsMoving)
	assert.Equal(t, pedometer.ReasonStep, next.Reason)
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	retained []bool
	values   []any
	err      error
}

func (p *fakePublisher) PublishJSON(topic string, retained bool, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.retained = append(p.retained, retained)
	p.values = append(p.values, v)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.values)
}

func TestPublishUpdatesUntilClosed(t *testing.T) {
	pub := &fakePublisher{}
	updates := make(chan pedometer.Update, 3)
	updates <- pedometer.Update{StepCount: 1}
	updates <- pedometer.Update{StepCount: 2}
	close(updates)

	PublishUpdates(context.Background(), pub, "tracker/steps", updates, quietLogger())

	require.Equal(t, 2, pub.count())
	assert.Equal(t, []string{"tracker/steps", "tracker/steps"}, pub.topics)
	assert.Equal(t, []bool{true, true}, pub.retained)
	assert.Equal(t, 2, pub.values[1].(pedometer.Update).StepCount)
}

func TestPublishUpdatesStopsOnContext(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	updates := make(chan pedometer.Update)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		PublishUpdates(ctx, pub, "tracker/steps", updates, quietLogger())
		close(done)
	}()
	updates <- pedometer.Update{StepCount: 5}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishUpdates did not return after cancel")
	}
	assert.Equal(t, 0, pub.count())
}

type stubIMU struct {
	mu    sync.Mutex
	reads int
}

func (s *stubIMU) ReadRaw() (imu.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.reads%2 == 0 {
		return imu.Raw{}, errors.New("spi timeout")
	}
	return imu.Raw{Source: "mpu9250", Az: 16384}, nil
}

func TestProduceIMUStampsAndSkipsErrors(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		produceIMU(ctx, &stubIMU{}, pub, "tracker/imu/raw", time.Millisecond, quietLogger())
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.count() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for i, v := range pub.values {
		raw := v.(imu.Raw)
		assert.Equal(t, "tracker/imu/raw", pub.topics[i])
		assert.False(t, pub.retained[i])
		assert.EqualValues(t, 16384, raw.Az)
		assert.NotZero(t, raw.TimeMs)
	}
}

func TestFormatUpdate(t *testing.T) {
	line := FormatUpdate(pedometer.Update{
		Date: "2026-03-14", StepCount: 4321, PendingSteps: 3, Calories: 172,
		GoalProgress: 0.4321, IsMoving: true, SensorAvailable: true, Reason: pedometer.ReasonFlush,
	})
	assert.Contains(t, line, "steps=  4321")
	assert.Contains(t, line, "pending=  3")
	assert.Contains(t, line, "goal= 43.2%")
	assert.Contains(t, line, "moving (flush)")
	assert.NotContains(t, line, "no sensor")

	assert.Contains(t, FormatUpdate(pedometer.Update{}), "[no sensor]")
}

func TestStepLines(t *testing.T) {
	u := pedometer.Update{StepCount: 250, GoalProgress: 0.03, Calories: 10, SensorAvailable: true, Calibrated: true}
	assert.Equal(t, []string{"Steps    250", "Goal      3%", "kcal      10", "idle"}, StepLines(u))

	u.PendingSteps = 4
	u.IsMoving = true
	lines := StepLines(u)
	assert.Equal(t, "Steps    250+4", lines[0])
	assert.Equal(t, "MOVING", lines[3])

	u.Calibrated = false
	assert.Equal(t, "calibrating", StepLines(u)[3])
	u.SensorAvailable = false
	assert.Equal(t, "no sensor", StepLines(u)[3])
}

func TestRenderLines(t *testing.T) {
	blank := RenderLines(nil)
	assert.Equal(t, oledWidth, blank.Bounds().Dx())
	assert.Equal(t, oledHeight, blank.Bounds().Dy())
	for _, b := range blank.Pix {
		require.Zero(t, b)
	}

	img := RenderLines([]string{"Steps 1", "", "", "", "ignored fifth line"})
	lit := 0
	for y := 0; y < oledHeight; y++ {
		for x := 0; x < oledWidth; x++ {
			if img.BitAt(x, y) == image1bit.On {
				lit++
			}
		}
	}
	assert.Positive(t, lit)
}
