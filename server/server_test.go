package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/onnwee/live-herald/relay"
	"github.com/onnwee/live-herald/store"
)

type fakeConns map[string]relay.State

func (f fakeConns) States() map[string]relay.State { return f }

type fakeUsage struct{}

func (fakeUsage) Usage() (string, int, int) { return "2026-10-16", 12, 1000 }
func (fakeUsage) NextReset() time.Time { return time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC) }

func newDeps(t *testing.T) Deps {
	t.Helper()
	st := store.Open(filepath.Join(t.TempDir(), "state.json"))
	if err := st.MarkLive("alice", time.Unix(1_760_000_000, 0), store.User{UniqueID: "alice"}, "Hello"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetMessageID("alice", "m1"); err != nil {
		t.Fatal(err)
	}
	return Deps{
		Store:       st,
		Connections: fakeConns{"alice": relay.StateConnected, "bob": relay.StateRetrying},
		Quota:       fakeUsage{},
		Accounts:    []string{"bob", "alice"},
	}
}

func TestHealthzOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	NewMux(Deps{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("missing correlation id header")
	}
}

func TestCorrelationHeaderReused(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr := httptest.NewRecorder()
	NewMux(Deps{}).ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Fatalf("correlation id = %q", got)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		ready    func() bool
		wantCode int
		wantFail string
	}{
		{"no session probe", nil, http.StatusOK, ""},
		{"ready", func() bool { return true }, http.StatusOK, ""},
		{"not ready", func() bool { return false }, http.StatusServiceUnavailable, "chat_session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newDeps(t)
			deps.Ready = tt.ready
			rr := httptest.NewRecorder()
			NewMux(deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rr.Code, tt.wantCode)
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["failed_check"] != tt.wantFail {
				t.Fatalf("failed_check = %q, want %q", resp["failed_check"], tt.wantFail)
			}
		})
	}
}

func TestStatusReportsAccountsAndQuota(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(newDeps(t)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var resp struct {
		Accounts []struct {
			Account    string `json:"account"`
			Live       bool   `json:"live"`
			Title      string `json:"title"`
			MessageID  string `json:"messageId"`
			Connection string `json:"connection"`
		} `json:"accounts"`
		Quota struct {
			Count int `json:"count"`
			Limit int `json:"limit"`
		} `json:"quota"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Accounts) != 2 || resp.Accounts[0].Account != "alice" || resp.Accounts[1].Account != "bob" {
		t.Fatalf("accounts = %+v", resp.Accounts)
	}
	a := resp.Accounts[0]
	if !a.Live || a.Title != "Hello" || a.MessageID != "m1" || a.Connection != "connected" {
		t.Fatalf("alice = %+v", a)
	}
	if resp.Accounts[1].Live || resp.Accounts[1].Connection != "retry_pending" {
		t.Fatalf("bob = %+v", resp.Accounts[1])
	}
	if resp.Quota.Count != 12 || resp.Quota.Limit != 1000 {
		t.Fatalf("quota = %+v", resp.Quota)
	}
}

func TestStatusRejectsPost(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(newDeps(t)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code = %d", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, Deps{}) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
