package notify

import (
	"context"
	"log/slog"
)

// DirectMessenger sends private messages to a platform user.
type DirectMessenger interface {
	SendDirect(ctx context.Context, userID string, msg Message) error
}

// Owner delivers operational alerts to the bot owner. All methods are
// best-effort and safe on a nil *Owner; an empty owner id disables them.
type Owner struct {
	dm DirectMessenger
	id string
}

// NewOwner returns an Owner alerting userID through dm.
func NewOwner(dm DirectMessenger, userID string) *Owner {
	return &Owner{dm: dm, id: userID}
}

// Enabled reports whether alerts will be attempted.
func (o *Owner) Enabled() bool { return o != nil && o.dm != nil && o.id != "" }

// Notify sends msg to the owner, logging failures.
func (o *Owner) Notify(ctx context.Context, msg Message) {
	if !o.Enabled() {
		return
	}
	if err := o.dm.SendDirect(ctx, o.id, msg); err != nil {
		slog.Warn("owner alert failed", slog.String("component", "notify"), slog.Any("err", err))
	}
}

// WarnQuota alerts that the daily quota reached its warning threshold.
func (o *Owner) WarnQuota(ctx context.Context, used, limit int) {
	o.Notify(ctx, QuotaWarningMessage(used, limit))
}

// QuotaExhausted alerts that the daily quota is spent.
func (o *Owner) QuotaExhausted(ctx context.Context, limit int) {
	o.Notify(ctx, QuotaExhaustedMessage(limit))
}

// ConnectionLost alerts that account was forced offline.
func (o *Owner) ConnectionLost(ctx context.Context, account string, attempts int) {
	o.Notify(ctx, ConnectionLostMessage(account, attempts))
}
