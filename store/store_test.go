package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "state.json"))
	if s.IsLive("alice") {
		t.Fatalf("expected alice offline in empty store")
	}
	if _, ok := s.MessageID("alice"); ok {
		t.Fatalf("expected no message id in empty store")
	}
}

func TestOpenMalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := Open(path)
	if len(s.Snapshot()) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s.Snapshot())
	}
	// Mutations must still work against the recovered aggregate.
	if err := s.SetMessageID("alice", "m1"); err != nil {
		t.Fatalf("SetMessageID: %v", err)
	}
}

func TestOpenPartialFileFillsMaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"sentMessages":{"alice":"m9"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := Open(path)
	if id, ok := s.MessageID("alice"); !ok || id != "m9" {
		t.Fatalf("MessageID = %q,%v want m9,true", id, ok)
	}
	if err := s.MarkLive("alice", time.Now(), User{UniqueID: "alice"}, "hi"); err != nil {
		t.Fatalf("MarkLive on partial file: %v", err)
	}
}

func TestMutationsPersistWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := Open(path)
	start := time.UnixMilli(1_700_000_000_123)
	if err := s.MarkLive("alice", start, User{UniqueID: "alice", AvatarURL: "https://a/av.png"}, "Cooking"); err != nil {
		t.Fatalf("MarkLive: %v", err)
	}
	if err := s.SetMessageID("alice", "111"); err != nil {
		t.Fatalf("SetMessageID: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"sentMessages", "streamStartTimes", "liveStatus", "userCache", "titleCache"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, b)
		}
	}

	reopened := Open(path)
	sess := reopened.Session("alice")
	if !sess.Live || sess.Title != "Cooking" || sess.MessageID != "111" {
		t.Fatalf("unexpected session after reopen: %+v", sess)
	}
	if sess.StartedAt.UnixMilli() != start.UnixMilli() {
		t.Fatalf("StartedAt = %v, want %v", sess.StartedAt, start)
	}
	if sess.User.AvatarURL != "https://a/av.png" || !sess.HasUser {
		t.Fatalf("user cache not restored: %+v", sess.User)
	}
}

func TestMarkLiveKeepsTitleWhenEmpty(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "state.json"))
	if err := s.MarkLive("alice", time.Now(), User{UniqueID: "alice"}, "First"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkOffline("alice"); err != nil {
		t.Fatal(err)
	}
	if got := s.Session("alice").Title; got != "" {
		t.Fatalf("title should be cleared on offline, got %q", got)
	}
	if err := s.MarkLive("alice", time.Now(), User{UniqueID: "alice"}, ""); err != nil {
		t.Fatal(err)
	}
	if got := s.Session("alice").Title; got != "" {
		t.Fatalf("empty title must not be cached, got %q", got)
	}
}

func TestSetMessageIDOverwrites(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "state.json"))
	_ = s.SetMessageID("alice", "1")
	_ = s.SetMessageID("alice", "2")
	if id, _ := s.MessageID("alice"); id != "2" {
		t.Fatalf("MessageID = %q, want 2", id)
	}
}

func TestReconnectCounter(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "state.json"))
	for i := 1; i <= 3; i++ {
		if got := s.IncrementReconnect("alice"); got != i {
			t.Fatalf("IncrementReconnect = %d, want %d", got, i)
		}
	}
	if err := s.MarkLive("alice", time.Now(), User{UniqueID: "alice"}, ""); err != nil {
		t.Fatal(err)
	}
	if got := s.ReconnectAttempts("alice"); got != 0 {
		t.Fatalf("live transition should reset counter, got %d", got)
	}
}

func TestResetLiveDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := Open(path)
	if err := s.MarkLive("alice", time.Now(), User{UniqueID: "alice"}, ""); err != nil {
		t.Fatal(err)
	}
	s.ResetLive([]string{"alice", "bob"})
	if s.IsLive("alice") {
		t.Fatalf("alice should be offline in memory")
	}
	if !Open(path).IsLive("alice") {
		t.Fatalf("ResetLive must not rewrite the file")
	}
}

func TestSnapshotSorted(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "state.json"))
	s.ResetLive([]string{"carol", "alice"})
	_ = s.SetMessageID("bob", "b1")
	snap := s.Snapshot()
	if len(snap) != 3 || snap[0].Account != "alice" || snap[1].Account != "bob" || snap[2].Account != "carol" {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
	in := []string{"z", "a"}
	_ = s.Snapshot(in...)
	if in[0] != "z" {
		t.Fatalf("Snapshot must not reorder caller slice")
	}
}

func TestQuotaFileDefaults(t *testing.T) {
	f := QuotaFile{Path: filepath.Join(t.TempDir(), "quota.json")}
	st := f.Load("2026-10-16")
	if st.Date != "2026-10-16" || st.Count != 0 {
		t.Fatalf("Load on missing file = %+v", st)
	}
	if err := f.Save(QuotaState{Date: "2026-10-16", Count: 42}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if st := f.Load("2026-10-16"); st.Count != 42 {
		t.Fatalf("Load after save = %+v", st)
	}
	if err := os.WriteFile(f.Path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if st := f.Load("2026-10-17"); st.Date != "2026-10-17" || st.Count != 0 {
		t.Fatalf("Load on malformed file = %+v", st)
	}
}
