package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// FeedServer mocks the telemetry websocket endpoint. Each connection is
// keyed by its uniqueId query parameter.
type FeedServer struct {
	*httptest.Server
	// WSURL is the ws:// form of the server URL.
	WSURL string
	// Connected receives the account of every accepted connection.
	Connected chan string

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	dials  map[string]int
	apiKey map[string]string
	reject map[string]int
}

// NewFeedServer starts a feed server closed on test cleanup.
func NewFeedServer(t *testing.T) *FeedServer {
	t.Helper()
	s := &FeedServer{
		Connected: make(chan string, 64),
		conns:     make(map[string]*websocket.Conn),
		dials:     make(map[string]int),
		apiKey:    make(map[string]string),
		reject:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	s.WSURL = "ws" + strings.TrimPrefix(s.Server.URL, "http")
	t.Cleanup(func() {
		s.mu.Lock()
		for _, c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		s.Close()
	})
	return s
}

func (s *FeedServer) handle(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("uniqueId")
	s.mu.Lock()
	s.dials[account]++
	s.apiKey[account] = r.URL.Query().Get("apiKey")
	if s.reject[account] > 0 {
		s.reject[account]--
		s.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[account] = conn
	s.mu.Unlock()
	select {
	case s.Connected <- account:
	default:
	}

	// Drain until the client goes away so close frames are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.mu.Lock()
	if s.conns[account] == conn {
		delete(s.conns, account)
	}
	s.mu.Unlock()
}

// Send writes a JSON frame to account's connection.
func (s *FeedServer) Send(account string, frame any) error {
	s.mu.Lock()
	conn, ok := s.conns[account]
	s.mu.Unlock()
	if !ok {
		return websocket.ErrCloseSent
	}
	return conn.WriteJSON(frame)
}

// SendRaw writes a text frame verbatim.
func (s *FeedServer) SendRaw(account string, payload []byte) error {
	s.mu.Lock()
	conn, ok := s.conns[account]
	s.mu.Unlock()
	if !ok {
		return websocket.ErrCloseSent
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Drop closes account's connection from the server side.
func (s *FeedServer) Drop(account string) {
	s.mu.Lock()
	conn, ok := s.conns[account]
	delete(s.conns, account)
	s.mu.Unlock()
	if ok {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), deadlineSoon())
		_ = conn.Close()
	}
}

func deadlineSoon() time.Time { return time.Now().Add(time.Second) }

// RejectNext makes the next n handshakes for account fail with 503.
func (s *FeedServer) RejectNext(account string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[account] = n
}

// Dials returns how many handshakes account attempted.
func (s *FeedServer) Dials(account string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials[account]
}

// APIKey returns the apiKey query parameter of account's last handshake.
func (s *FeedServer) APIKey(account string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey[account]
}

// RoomInfoFrame builds a frame carrying a single roomInfo message.
func RoomInfoFrame(account string, live bool, startTime int64, title string) map[string]any {
	room := map[string]any{"isLive": live}
	if startTime > 0 {
		room["startTime"] = startTime
	}
	if title != "" {
		room["title"] = title
	}
	return map[string]any{
		"messages": []map[string]any{{
			"type": "roomInfo",
			"data": map[string]any{
				"roomInfo": room,
				"user":     map[string]any{"uniqueId": account, "avatarUrl": "https://cdn.example/" + account + ".png"},
			},
		}},
	}
}
