// Package store owns the durable state of the relay: which accounts are
// believed live, when their sessions started, which announcement message
// represents each session, and the user/title snapshots needed to announce
// an end when no fresh payload is available.
//
// The whole aggregate is rewritten to a single JSON file after every
// mutation. A missing or malformed file is not fatal; the store starts
// empty and logs a warning.
package store

import (
	"errors"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// User is the last-known identity of a tracked account.
type User struct {
	UniqueID  string `json:"uniqueId"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// persisted is the on-disk layout of the session file.
type persisted struct {
	SentMessages     map[string]string `json:"sentMessages"`
	StreamStartTimes map[string]int64  `json:"streamStartTimes"`
	LiveStatus       map[string]bool   `json:"liveStatus"`
	UserCache        map[string]User   `json:"userCache"`
	TitleCache       map[string]string `json:"titleCache"`
}

func (p *persisted) fill() {
	if p.SentMessages == nil {
		p.SentMessages = map[string]string{}
	}
	if p.StreamStartTimes == nil {
		p.StreamStartTimes = map[string]int64{}
	}
	if p.LiveStatus == nil {
		p.LiveStatus = map[string]bool{}
	}
	if p.UserCache == nil {
		p.UserCache = map[string]User{}
	}
	if p.TitleCache == nil {
		p.TitleCache = map[string]string{}
	}
}

// Session is a point-in-time view of one account, assembled from the maps.
type Session struct {
	Account           string    `json:"account"`
	Live              bool      `json:"live"`
	StartedAt         time.Time `json:"startedAt,omitempty"`
	Title             string    `json:"title,omitempty"`
	User              User      `json:"user"`
	HasUser           bool      `json:"-"`
	MessageID         string    `json:"messageId,omitempty"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
}

// Store is the process-wide state aggregate. It is safe for concurrent use.
type Store struct {
	path string

	mu         sync.Mutex
	data       persisted
	reconnects map[string]int
}

// Open loads the state file at path. Missing or unreadable files yield an
// empty store.
func Open(path string) *Store {
	s := &Store{path: path, reconnects: map[string]int{}}
	if err := readJSON(path, &s.data); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("state file unreadable, starting empty", slog.String("path", path), slog.Any("err", err))
		}
		s.data = persisted{}
	}
	s.data.fill()
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Save flushes the current state to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	return writeJSON(s.path, &s.data)
}

// ResetLive marks every account offline in memory without persisting.
// Used at startup: a cold start always begins offline.
func (s *Store) ResetLive(accounts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.data.LiveStatus[a] = false
	}
}

// IsLive reports whether account is currently believed live.
func (s *Store) IsLive(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LiveStatus[account]
}

// MarkLive records a live transition: status, start time, user snapshot and
// (when non-empty) title. The reconnect counter is reset. Persists.
func (s *Store) MarkLive(account string, startedAt time.Time, user User, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LiveStatus[account] = true
	s.data.StreamStartTimes[account] = startedAt.UnixMilli()
	s.data.UserCache[account] = user
	if title != "" {
		s.data.TitleCache[account] = title
	}
	s.reconnects[account] = 0
	return s.saveLocked()
}

// MarkOffline records an offline transition and drops the cached title. Persists.
func (s *Store) MarkOffline(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LiveStatus[account] = false
	delete(s.data.TitleCache, account)
	return s.saveLocked()
}

// SetMessageID replaces the tracked announcement for account. Persists.
func (s *Store) SetMessageID(account, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.SentMessages[account] = id
	return s.saveLocked()
}

// MessageID returns the tracked announcement for account.
func (s *Store) MessageID(account string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.data.SentMessages[account]
	return id, ok && id != ""
}

// IncrementReconnect bumps the consecutive-close counter and returns the new value.
func (s *Store) IncrementReconnect(account string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects[account]++
	return s.reconnects[account]
}

// ResetReconnect zeroes the consecutive-close counter.
func (s *Store) ResetReconnect(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects[account] = 0
}

// ReconnectAttempts returns the consecutive-close counter.
func (s *Store) ReconnectAttempts(account string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects[account]
}

// Session assembles the current view of account.
func (s *Store) Session(account string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked(account)
}

func (s *Store) sessionLocked(account string) Session {
	sess := Session{
		Account:           account,
		Live:              s.data.LiveStatus[account],
		Title:             s.data.TitleCache[account],
		MessageID:         s.data.SentMessages[account],
		ReconnectAttempts: s.reconnects[account],
	}
	if ms, ok := s.data.StreamStartTimes[account]; ok {
		sess.StartedAt = time.UnixMilli(ms).UTC()
	}
	if u, ok := s.data.UserCache[account]; ok {
		sess.User = u
		sess.HasUser = true
	}
	return sess
}

// Snapshot returns sessions for the given accounts, or for every known
// account when none are given, sorted by account.
func (s *Store) Snapshot(accounts ...string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts = append([]string(nil), accounts...)
	if len(accounts) == 0 {
		seen := map[string]struct{}{}
		for a := range s.data.LiveStatus {
			seen[a] = struct{}{}
		}
		for a := range s.data.SentMessages {
			seen[a] = struct{}{}
		}
		for a := range seen {
			accounts = append(accounts, a)
		}
	}
	sort.Strings(accounts)
	out := make([]Session, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, s.sessionLocked(a))
	}
	return out
}
