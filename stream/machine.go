// Package stream turns telemetry frames into live/offline transitions.
//
// Status is read from and written to the store; a transition fires only
// when the reported status differs from the stored one, so repeated
// "still live" or "still offline" reports are no-ops. Each account's
// check-and-transition runs under that account's lock, which keeps a
// socket-driven offline and a forced offline from both announcing.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/live-herald/notify"
	"github.com/onnwee/live-herald/store"
	"github.com/onnwee/live-herald/telemetry"
)

// Announcer publishes transitions. *notify.Router satisfies it.
type Announcer interface {
	AnnounceLive(ctx context.Context, l notify.Live)
	AnnounceEnded(ctx context.Context, e notify.Ended)
}

// Machine is safe for concurrent use across accounts.
type Machine struct {
	store     *store.Store
	announcer Announcer
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine returns a Machine reading and writing st and publishing through a.
func NewMachine(st *store.Store, a Announcer, opts ...Option) *Machine {
	m := &Machine{store: st, announcer: a, now: time.Now, locks: make(map[string]*sync.Mutex)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) lock(account string) func() {
	m.mu.Lock()
	l, ok := m.locks[account]
	if !ok {
		l = &sync.Mutex{}
		m.locks[account] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// HandleFrame applies every roomInfo update in raw, in order.
func (m *Machine) HandleFrame(ctx context.Context, account string, raw []byte) {
	for _, u := range Decode(raw) {
		m.Apply(ctx, account, u)
	}
}

// Apply evaluates one update against account's stored status.
func (m *Machine) Apply(ctx context.Context, account string, u Update) {
	unlock := m.lock(account)
	defer unlock()

	wasLive := m.store.IsLive(account)
	switch {
	case u.Room.IsLive && !wasLive:
		m.goLive(ctx, account, u)
	case u.Room.IsLive:
		// Still live: the feed is reachable again.
		m.store.ResetReconnect(account)
	case wasLive:
		m.goOffline(ctx, account, &u, false)
	}
}

// ForceOffline ends account's session using cached data only. It returns
// false, announcing nothing, when the account is not live.
func (m *Machine) ForceOffline(ctx context.Context, account string) bool {
	unlock := m.lock(account)
	defer unlock()

	if !m.store.IsLive(account) {
		return false
	}
	m.goOffline(ctx, account, nil, true)
	return true
}

func (m *Machine) goLive(ctx context.Context, account string, u Update) {
	ctx, span := telemetry.StartSpan(ctx, "stream", "live_transition", telemetry.AccountAttr(account))
	defer span.End()

	startedAt := m.now()
	if u.Room.StartTime > 0 {
		startedAt = time.Unix(u.Room.StartTime, 0)
	}
	user := store.User{UniqueID: u.User.UniqueID, AvatarURL: u.User.AvatarURL}
	if err := m.store.MarkLive(account, startedAt, user, u.Room.Title); err != nil {
		telemetry.RecordError(span, err)
		slog.Error("failed to persist live transition", slog.String("account", account), slog.Any("err", err))
	}
	telemetry.IncVec(telemetry.Transitions, "live")
	telemetry.AddGauge(telemetry.LiveAccountsGauge, 1)
	slog.Info("stream went live", slog.String("account", account), slog.Time("started_at", startedAt), slog.String("component", "stream"))

	sess := m.store.Session(account)
	m.announcer.AnnounceLive(ctx, notify.Live{
		Account:   account,
		Title:     sess.Title,
		CoverURL:  u.Room.CoverURL,
		User:      user,
		StartedAt: startedAt,
	})
}

// goOffline announces the end of account's session. fresh is nil for a
// forced transition.
func (m *Machine) goOffline(ctx context.Context, account string, fresh *Update, forced bool) {
	kind := "offline"
	if forced {
		kind = "forced_offline"
	}
	ctx, span := telemetry.StartSpan(ctx, "stream", kind+"_transition", telemetry.AccountAttr(account))
	defer span.End()

	sess := m.store.Session(account)
	user, title := sess.User, sess.Title
	if !sess.HasUser {
		user.UniqueID = account
	}
	if fresh != nil {
		if fresh.User.UniqueID != "" {
			user.UniqueID = fresh.User.UniqueID
		}
		if fresh.User.AvatarURL != "" {
			user.AvatarURL = fresh.User.AvatarURL
		}
		if fresh.Room.Title != "" {
			title = fresh.Room.Title
		}
	}
	endedAt := m.now()
	m.announcer.AnnounceEnded(ctx, notify.Ended{
		Account:   account,
		Title:     title,
		User:      user,
		StartedAt: sess.StartedAt,
		EndedAt:   endedAt,
		Forced:    forced,
	})

	if err := m.store.MarkOffline(account); err != nil {
		telemetry.RecordError(span, err)
		slog.Error("failed to persist offline transition", slog.String("account", account), slog.Any("err", err))
	}
	telemetry.IncVec(telemetry.Transitions, kind)
	telemetry.AddGauge(telemetry.LiveAccountsGauge, -1)
	slog.Info("stream went offline", slog.String("account", account), slog.Bool("forced", forced),
		slog.Duration("duration", endedAt.Sub(sess.StartedAt).Truncate(time.Second)), slog.String("component", "stream"))
}
