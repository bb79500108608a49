package notify_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/live-herald/notify"
	"github.com/onnwee/live-herald/store"
	"github.com/onnwee/live-herald/testutil"
)

func newRouter(t *testing.T) (*notify.Router, *testutil.FakeChannel, *store.Store) {
	t.Helper()
	ch := testutil.NewFakeChannel()
	st := store.Open(filepath.Join(t.TempDir(), "state.json"))
	return notify.NewRouter(ch, st), ch, st
}

func liveFor(account string) notify.Live {
	return notify.Live{
		Account:   account,
		Title:     "Late night cooking",
		User:      store.User{UniqueID: account, AvatarURL: "https://cdn.example/a.png"},
		StartedAt: time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC),
	}
}

func endedFor(account string) notify.Ended {
	return notify.Ended{
		Account:   account,
		Title:     "Late night cooking",
		User:      store.User{UniqueID: account},
		StartedAt: time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 10, 16, 21, 2, 3, 0, time.UTC),
	}
}

func TestAnnounceLiveAlwaysSendsNew(t *testing.T) {
	r, ch, st := newRouter(t)
	ctx := context.Background()

	r.AnnounceLive(ctx, liveFor("alice"))
	r.AnnounceLive(ctx, liveFor("alice"))

	if got := len(ch.Sends()); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}
	if got := len(ch.Edits()); got != 0 {
		t.Fatalf("AnnounceLive must never edit, got %d edits", got)
	}
	id, ok := st.MessageID("alice")
	if !ok || id != ch.Sends()[1].ID {
		t.Fatalf("tracked id = %q, want latest send %q", id, ch.Sends()[1].ID)
	}
}

func TestAnnounceEndedEditsTrackedMessage(t *testing.T) {
	r, ch, st := newRouter(t)
	ctx := context.Background()

	r.AnnounceLive(ctx, liveFor("alice"))
	liveID, _ := st.MessageID("alice")
	r.AnnounceEnded(ctx, endedFor("alice"))

	if got := len(ch.Sends()); got != 1 {
		t.Fatalf("sends = %d, want 1 (edit in place)", got)
	}
	edits := ch.Edits()
	if len(edits) != 1 || edits[0].ID != liveID {
		t.Fatalf("edits = %+v, want one edit of %s", edits, liveID)
	}
	if id, _ := st.MessageID("alice"); id != liveID {
		t.Fatalf("tracked id changed to %q after edit", id)
	}
	msg, _ := ch.Message(liveID)
	if msg.Embed == nil || msg.Embed.Fields[0].Value != "1h 02m 03s" {
		t.Fatalf("ended message duration not rendered: %+v", msg.Embed)
	}
}

func TestAnnounceEndedFallsBackWhenDeleted(t *testing.T) {
	r, ch, st := newRouter(t)
	ctx := context.Background()

	r.AnnounceLive(ctx, liveFor("alice"))
	liveID, _ := st.MessageID("alice")
	ch.Delete(liveID)
	r.AnnounceEnded(ctx, endedFor("alice"))

	sends := ch.Sends()
	if len(sends) != 2 {
		t.Fatalf("sends = %d, want 2 (live + fallback)", len(sends))
	}
	if id, _ := st.MessageID("alice"); id != sends[1].ID {
		t.Fatalf("tracked id = %q, want fallback %q", id, sends[1].ID)
	}
}

func TestAnnounceEndedWithoutReferenceSendsNew(t *testing.T) {
	r, ch, st := newRouter(t)
	r.AnnounceEnded(context.Background(), endedFor("bob"))

	if got := len(ch.Sends()); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	if _, ok := st.MessageID("bob"); !ok {
		t.Fatal("fallback message id not tracked")
	}
}

func TestAnnounceEndedEditNotFoundFallsBack(t *testing.T) {
	r, ch, _ := newRouter(t)
	ctx := context.Background()
	r.AnnounceLive(ctx, liveFor("alice"))
	ch.FailEdits(notify.ErrMessageNotFound)
	r.AnnounceEnded(ctx, endedFor("alice"))
	if got := len(ch.Sends()); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}
}

func TestDeliveryFailuresAreSwallowed(t *testing.T) {
	r, ch, st := newRouter(t)
	ctx := context.Background()

	ch.FailSends(errors.New("gateway down"))
	r.AnnounceLive(ctx, liveFor("alice"))
	if _, ok := st.MessageID("alice"); ok {
		t.Fatal("failed send must not be tracked")
	}

	ch.FailSends(nil)
	r.AnnounceLive(ctx, liveFor("alice"))
	ch.FailFetches(errors.New("timeout"))
	r.AnnounceEnded(ctx, endedFor("alice"))
	if got := len(ch.Sends()); got != 1 {
		t.Fatalf("transport error on fetch must not fall back to send; sends = %d", got)
	}
}

func TestOwnerAlerts(t *testing.T) {
	dm := &testutil.FakeMessenger{}
	ctx := context.Background()

	notify.NewOwner(dm, "").WarnQuota(ctx, 900, 1000)
	if len(dm.Sent()) != 0 {
		t.Fatal("owner alerts must be disabled without an owner id")
	}
	var nilOwner *notify.Owner
	nilOwner.QuotaExhausted(ctx, 1000)

	o := notify.NewOwner(dm, "42")
	o.WarnQuota(ctx, 900, 1000)
	o.QuotaExhausted(ctx, 1000)
	o.ConnectionLost(ctx, "alice", 4)
	sent := dm.Sent()
	if len(sent) != 3 || sent[0].UserID != "42" {
		t.Fatalf("sent = %+v", sent)
	}
	if !strings.Contains(sent[2].Msg.Embed.Description, "alice") {
		t.Fatalf("connection lost alert missing account: %q", sent[2].Msg.Embed.Description)
	}

	dm.Fail(errors.New("dm closed"))
	o.WarnQuota(ctx, 900, 1000)
}
