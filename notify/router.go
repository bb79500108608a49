// Package notify delivers stream announcements to the alert channel and
// best-effort alerts to the owner.
//
// Each session is represented by exactly one channel message. AnnounceLive
// always posts a new message and tracks its id; AnnounceEnded edits the
// tracked message in place, or posts a new one when it is gone. Delivery
// failures are logged and counted but never retried, and never block the
// caller's state transition.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onnwee/live-herald/telemetry"
)

// ErrMessageNotFound is returned by Channel implementations when a message
// id no longer resolves (deleted, or never existed).
var ErrMessageNotFound = errors.New("message not found")

// Channel is the announcement channel of the chat platform.
type Channel interface {
	Send(ctx context.Context, msg Message) (string, error)
	Fetch(ctx context.Context, id string) error
	Edit(ctx context.Context, id string, msg Message) error
}

// MessageRefs tracks the announcement message of each account's current session.
type MessageRefs interface {
	MessageID(account string) (string, bool)
	SetMessageID(account, id string) error
}

// Router upserts the one message representing each session.
type Router struct {
	channel Channel
	refs    MessageRefs
}

// NewRouter returns a Router posting to channel and tracking ids in refs.
func NewRouter(channel Channel, refs MessageRefs) *Router {
	return &Router{channel: channel, refs: refs}
}

// AnnounceLive posts a new message for a session that just started and
// records it as the account's current announcement. It never edits.
func (r *Router) AnnounceLive(ctx context.Context, l Live) {
	ctx, span := telemetry.StartSpan(ctx, "notify", "announce_live", telemetry.AccountAttr(l.Account))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("account", l.Account), slog.String("component", "notify"))

	var (
		id  string
		err error
	)
	telemetry.TimeFunc(telemetry.AnnounceDuration, func() {
		id, err = r.channel.Send(ctx, LiveMessage(l))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.IncVec(telemetry.NotificationsFailed, "live")
		log.Error("live announcement failed", slog.Any("err", err))
		return
	}
	r.track(log, l.Account, id)
	span.SetAttributes(telemetry.MessageIDAttr(id))
	telemetry.SetSpanSuccess(span)
	telemetry.IncVec(telemetry.NotificationsSent, "live")
	log.Info("live announced", slog.String("message_id", id))
}

// AnnounceEnded edits the account's tracked announcement into its terminal
// form. When nothing is tracked or the tracked message is gone, a new
// message is posted and tracked instead.
func (r *Router) AnnounceEnded(ctx context.Context, e Ended) {
	ctx, span := telemetry.StartSpan(ctx, "notify", "announce_ended", telemetry.AccountAttr(e.Account))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("account", e.Account), slog.String("component", "notify"))
	msg := EndedMessage(e)

	var err error
	telemetry.TimeFunc(telemetry.AnnounceDuration, func() {
		err = r.upsertEnded(ctx, log, e.Account, msg)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.IncVec(telemetry.NotificationsFailed, "ended")
		log.Error("end announcement failed", slog.Any("err", err))
		return
	}
	telemetry.SetSpanSuccess(span)
	telemetry.IncVec(telemetry.NotificationsSent, "ended")
}

func (r *Router) upsertEnded(ctx context.Context, log *slog.Logger, account string, msg Message) error {
	if id, ok := r.refs.MessageID(account); ok {
		err := r.channel.Fetch(ctx, id)
		if err == nil {
			err = r.channel.Edit(ctx, id, msg)
		}
		switch {
		case err == nil:
			log.Info("end announced by edit", slog.String("message_id", id))
			return nil
		case errors.Is(err, ErrMessageNotFound):
			log.Info("tracked announcement missing, posting new one", slog.String("message_id", id))
		default:
			return err
		}
	}
	id, err := r.channel.Send(ctx, msg)
	if err != nil {
		return err
	}
	r.track(log, account, id)
	log.Info("end announced", slog.String("message_id", id))
	return nil
}

func (r *Router) track(log *slog.Logger, account, id string) {
	if err := r.refs.SetMessageID(account, id); err != nil {
		log.Error("failed to persist message id", slog.String("message_id", id), slog.Any("err", err))
	}
}
