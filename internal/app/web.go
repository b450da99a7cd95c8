// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/step_tracker/internal/pedometer"
	"github.com/relabs-tech/step_tracker/internal/store"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // served on the local network only
	},
}

// Tracker is the part of the engine the web API drives.
type Tracker interface {
	Snapshot() pedometer.Update
	ResetStepCount() error
	AddSteps(n int) error
	Subscribe(buffer int) (<-chan pedometer.Update, func())
}

// WebServer serves the JSON API, the live websocket and the static page.
type WebServer struct {
	tracker Tracker
	history store.History
	log     *slog.Logger
	mux     *http.ServeMux
}

// NewWebServer builds the handlers. history may be nil when the store keeps
// only the current day.
func NewWebServer(tracker Tracker, history store.History, staticDir string, log *slog.Logger) *WebServer {
	if log == nil {
		log = slog.Default()
	}
	s := &WebServer{tracker: tracker, history: history, log: log, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /api/steps", s.handleSteps)
	s.mux.HandleFunc("POST /api/steps/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/steps/add", s.handleAdd)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /ws", s.handleWS)

	if staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			s.mux.Handle("/", http.FileServer(http.Dir(staticDir)))
		}
	}
	return s
}

func (s *WebServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs the server until ctx is done.
func (s *WebServer) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web: server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *WebServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("web: json encode error", "err", err)
	}
}

func (s *WebServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, pedometer.ErrInvalidSteps):
		return http.StatusBadRequest
	case errors.Is(err, pedometer.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *WebServer) handleSteps(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ResetStepCount(); err != nil {
		s.writeError(w, commandStatus(err), err)
		return
	}
	s.log.Info("web: step count reset", "remote", r.RemoteAddr)
	s.writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *WebServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query parameter n: %w", err))
		return
	}
	if err := s.tracker.AddSteps(n); err != nil {
		s.writeError(w, commandStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("store keeps no history"))
		return
	}
	limit := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid days %q", v))
			return
		}
		limit = n
	}

	days, err := s.history.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if days == nil {
		days = []pedometer.DailyStepRecord{}
	}
	s.writeJSON(w, http.StatusOK, days)
}

// handleWS sends the current state, then every update, until the client
// goes away.
func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("web: websocket upgrade error", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.tracker.Subscribe(wsBuffer)
	defer cancel()

	// The reader only handles control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(u pedometer.Update) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(u)
	}
	if err := send(s.tracker.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := send(u); err != nil {
				s.log.Debug("web: websocket write error", "err", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
