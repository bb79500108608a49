// Package relay runs one telemetry connection task per tracked account.
//
// Each task loops: ask the daily quota for admission, dial, feed frames to
// the state machine until the socket closes, count the close, and wait a
// fixed delay before dialing again. When consecutive closes reach the
// configured ceiling while the account is believed live, the session is
// ended with cached data and the owner is told. The registry guarantees at
// most one task, and therefore one socket, per account.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/live-herald/feed"
	"github.com/onnwee/live-herald/store"
	"github.com/onnwee/live-herald/telemetry"
)

// ErrAlreadyRunning is returned by Start when the account already has a task.
var ErrAlreadyRunning = errors.New("account already has a connection task")

// Admission gates connection attempts. *quota.Quota satisfies it.
type Admission interface {
	Acquire(ctx context.Context) bool
	NextReset() time.Time
}

// Transitions consumes frames and forced closes. *stream.Machine satisfies it.
type Transitions interface {
	HandleFrame(ctx context.Context, account string, raw []byte)
	ForceOffline(ctx context.Context, account string) bool
}

// Alerts receives operational alerts. *notify.Owner satisfies it.
type Alerts interface {
	ConnectionLost(ctx context.Context, account string, attempts int)
}

// Options tunes the reconnect policy.
type Options struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// State is a task's position in its connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateRetrying     State = "retry_pending"
	StateQuotaBlocked State = "quota_blocked"
)

// Manager owns every connection task.
type Manager struct {
	dialer  feed.Dialer
	quota   Admission
	machine Transitions
	store   *store.Store
	alerts  Alerts
	opts    Options
	now     func() time.Time

	mu    sync.Mutex
	tasks map[string]State
	wg    sync.WaitGroup
}

// NewManager wires a Manager. alerts may be nil.
func NewManager(d feed.Dialer, q Admission, m Transitions, st *store.Store, alerts Alerts, opts Options) *Manager {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 4
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 10 * time.Second
	}
	return &Manager{
		dialer:  d,
		quota:   q,
		machine: m,
		store:   st,
		alerts:  alerts,
		opts:    opts,
		now:     time.Now,
		tasks:   make(map[string]State),
	}
}

// Run marks every account offline in memory, starts a task for each and
// blocks until ctx is done and all tasks have exited.
func (m *Manager) Run(ctx context.Context, accounts []string) {
	m.store.ResetLive(accounts)
	for _, a := range accounts {
		if err := m.Start(ctx, a); err != nil {
			slog.Warn("skipping account", slog.String("account", a), slog.Any("err", err))
		}
	}
	<-ctx.Done()
	m.Wait()
}

// Start launches the task for account. It refuses a second concurrent task
// for the same account.
func (m *Manager) Start(ctx context.Context, account string) error {
	m.mu.Lock()
	if _, ok := m.tasks[account]; ok {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.tasks[account] = StateDisconnected
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.tasks, account)
			m.mu.Unlock()
		}()
		m.run(ctx, account)
	}()
	return nil
}

// Wait blocks until every task has exited.
func (m *Manager) Wait() { m.wg.Wait() }

// States returns each running task's lifecycle state.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.tasks))
	for a, s := range m.tasks {
		out[a] = s
	}
	return out
}

// Accounts returns the accounts with a running task, sorted.
func (m *Manager) Accounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tasks))
	for a := range m.tasks {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) setState(account string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[account]; ok {
		m.tasks[account] = s
	}
}

func (m *Manager) run(ctx context.Context, account string) {
	log := slog.Default().With(slog.String("account", account), slog.String("component", "relay"))
	for ctx.Err() == nil {
		if !m.quota.Acquire(ctx) {
			until := m.quota.NextReset()
			m.setState(account, StateQuotaBlocked)
			log.Info("request quota exhausted; skipping account until reset", slog.Time("next_reset", until))
			wait := until.Sub(m.now())
			if wait < m.opts.ReconnectDelay {
				wait = m.opts.ReconnectDelay
			}
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		m.connectOnce(ctx, account)
		if ctx.Err() != nil {
			return
		}
		m.onClose(ctx, account)

		m.setState(account, StateRetrying)
		if !sleep(ctx, m.opts.ReconnectDelay) {
			return
		}
	}
}

// connectOnce dials and pumps frames until the socket closes. A failed dial
// counts as a close.
func (m *Manager) connectOnce(ctx context.Context, account string) {
	connCtx := telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(connCtx).With(slog.String("account", account), slog.String("component", "relay"))

	telemetry.Inc(telemetry.ConnectionAttempts)
	m.setState(account, StateConnecting)
	conn, err := m.dialer.Dial(connCtx, account)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("telemetry connect failed", slog.Any("err", err))
		}
		m.setState(account, StateDisconnected)
		return
	}
	m.setState(account, StateConnected)
	telemetry.AddGauge(telemetry.ConnectedAccountsGauge, 1)
	log.Info("telemetry socket open")

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		raw, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				log.Info("telemetry socket closed", slog.Int("code", feed.CloseCode(err)), slog.Any("err", err))
			}
			break
		}
		m.machine.HandleFrame(connCtx, account, raw)
	}
	close(done)
	_ = conn.Close()
	telemetry.AddGauge(telemetry.ConnectedAccountsGauge, -1)
	m.setState(account, StateDisconnected)
}

// onClose applies the reconnect ceiling.
func (m *Manager) onClose(ctx context.Context, account string) {
	telemetry.Inc(telemetry.SocketCloses)
	attempts := m.store.IncrementReconnect(account)
	if attempts < m.opts.MaxReconnectAttempts {
		return
	}
	if !m.machine.ForceOffline(ctx, account) {
		return
	}
	slog.Warn("reconnect ceiling reached while live; session ended",
		slog.String("account", account), slog.Int("attempts", attempts), slog.String("component", "relay"))
	if m.alerts != nil {
		m.alerts.ConnectionLost(ctx, account, attempts)
	}
	m.store.ResetReconnect(account)
}

// sleep waits for d or ctx, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
