// Package quota enforces the daily cap on outbound telemetry connection
// attempts shared by every tracked account.
//
// The counter resets the first time it is touched on a new UTC day; there
// is no timer. Reaching the warning threshold and reaching the limit each
// raise one owner alert, fired only on the exact increment that lands on
// the threshold.
package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/live-herald/store"
	"github.com/onnwee/live-herald/telemetry"
)

const dayLayout = "2006-01-02"

// Alerter receives threshold alerts.
type Alerter interface {
	WarnQuota(ctx context.Context, used, limit int)
	QuotaExhausted(ctx context.Context, limit int)
}

// Persister loads and saves the counter.
type Persister interface {
	Load(today string) store.QuotaState
	Save(st store.QuotaState) error
}

// Quota is safe for concurrent use.
type Quota struct {
	limit   int
	warnAt  int
	file    Persister
	alerter Alerter
	now     func() time.Time

	mu    sync.Mutex
	state store.QuotaState
}

// Option configures a Quota.
type Option func(*Quota)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Quota) { q.now = now }
}

// New loads the persisted counter and returns a Quota enforcing limit with
// a warning at warnAt. alerter may be nil.
func New(file Persister, limit, warnAt int, alerter Alerter, opts ...Option) *Quota {
	q := &Quota{limit: limit, warnAt: warnAt, file: file, alerter: alerter, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	q.state = file.Load(q.today())
	telemetry.SetQuotaUsed(q.state.Count)
	return q
}

func (q *Quota) today() string { return q.now().UTC().Format(dayLayout) }

// rolloverLocked resets the counter when the stored day is not today.
func (q *Quota) rolloverLocked() {
	today := q.today()
	if q.state.Date == today {
		return
	}
	slog.Info("request quota reset for new day",
		slog.String("previous_date", q.state.Date), slog.Int("previous_count", q.state.Count), slog.String("component", "quota"))
	q.state = store.QuotaState{Date: today}
	q.saveLocked()
}

func (q *Quota) saveLocked() {
	telemetry.SetQuotaUsed(q.state.Count)
	if err := q.file.Save(q.state); err != nil {
		slog.Error("failed to persist request quota", slog.Any("err", err), slog.String("component", "quota"))
	}
}

// CanMakeRequest reports whether another connection attempt is admitted today.
func (q *Quota) CanMakeRequest() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rolloverLocked()
	return q.state.Count < q.limit
}

// RecordRequest counts one connection attempt, persists, and fires any
// threshold alert the increment lands on.
func (q *Quota) RecordRequest(ctx context.Context) {
	q.mu.Lock()
	q.rolloverLocked()
	warn, exhausted, count := q.recordLocked()
	q.mu.Unlock()
	q.alert(ctx, warn, exhausted, count)
}

// Acquire checks and records in one step. It returns false, recording
// nothing, once today's limit is reached.
func (q *Quota) Acquire(ctx context.Context) bool {
	q.mu.Lock()
	q.rolloverLocked()
	if q.state.Count >= q.limit {
		q.mu.Unlock()
		telemetry.Inc(telemetry.QuotaDenied)
		return false
	}
	warn, exhausted, count := q.recordLocked()
	q.mu.Unlock()
	q.alert(ctx, warn, exhausted, count)
	return true
}

func (q *Quota) recordLocked() (warn, exhausted bool, count int) {
	q.state.Count++
	q.saveLocked()
	return q.state.Count == q.warnAt, q.state.Count == q.limit, q.state.Count
}

func (q *Quota) alert(ctx context.Context, warn, exhausted bool, count int) {
	if warn {
		slog.Warn("request quota warning threshold reached", slog.Int("count", count), slog.Int("limit", q.limit), slog.String("component", "quota"))
		if q.alerter != nil {
			q.alerter.WarnQuota(ctx, count, q.limit)
		}
	}
	if exhausted {
		slog.Warn("request quota exhausted; refusing connections until tomorrow", slog.Int("limit", q.limit), slog.String("component", "quota"))
		if q.alerter != nil {
			q.alerter.QuotaExhausted(ctx, q.limit)
		}
	}
}

// Usage returns today's date key, count and limit.
func (q *Quota) Usage() (date string, count, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rolloverLocked()
	return q.state.Date, q.state.Count, q.limit
}

// NextReset is the start of the next UTC day after now.
func (q *Quota) NextReset() time.Time {
	now := q.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
