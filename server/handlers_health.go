package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onnwee/live-herald/relay"
	"github.com/onnwee/live-herald/store"
)

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"chat_session", func() error {
			if h.deps.Ready != nil && !h.deps.Ready() {
				return errors.New("chat platform session not ready")
			}
			return nil
		}},
		{"state_dir", func() error {
			if h.deps.Store == nil {
				return nil
			}
			dir := filepath.Dir(h.deps.Store.Path())
			fi, err := os.Stat(dir)
			if errors.Is(err, os.ErrNotExist) {
				// Created on first save.
				return nil
			}
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type accountStatus struct {
	store.Session
	Connection relay.State `json:"connection,omitempty"`
}

type quotaStatus struct {
	Date      string    `json:"date"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	NextReset time.Time `json:"nextReset"`
}

type statusResponse struct {
	Accounts []accountStatus `json:"accounts"`
	Quota    *quotaStatus    `json:"quota,omitempty"`
}

// HandleStatus reports every tracked account's session and connection state
// along with today's quota usage.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{Accounts: []accountStatus{}}
	var states map[string]relay.State
	if h.deps.Connections != nil {
		states = h.deps.Connections.States()
	}
	if h.deps.Store != nil {
		for _, s := range h.deps.Store.Snapshot(h.deps.Accounts...) {
			resp.Accounts = append(resp.Accounts, accountStatus{Session: s, Connection: states[s.Account]})
		}
	}
	if h.deps.Quota != nil {
		date, count, limit := h.deps.Quota.Usage()
		resp.Quota = &quotaStatus{Date: date, Count: count, Limit: limit, NextReset: h.deps.Quota.NextReset()}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
