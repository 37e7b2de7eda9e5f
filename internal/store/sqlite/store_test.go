package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/store"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetUser_UnknownIsNilNil(t *testing.T) {
	s := openTestStore(t)

	u, err := s.GetUser(context.Background(), "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if u != nil {
		t.Errorf("unknown user = %+v, want nil", u)
	}
}

func TestUpsertUser_CreateThenPatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.UpsertUser(ctx, "u1", store.UserPatch{Name: store.Ptr("Alice")})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || u.Name != "Alice" {
		t.Fatalf("created user = %+v", u)
	}

	// A later patch only touches the named fields.
	u, err = s.UpsertUser(ctx, "u1", store.UserPatch{Premium: store.Ptr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if !u.Premium || u.Name != "Alice" {
		t.Errorf("patched user = %+v, want premium with name intact", u)
	}

	// The patch survived a round-trip.
	got, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Premium || got.Name != "Alice" {
		t.Errorf("reloaded user = %+v", got)
	}
}

func TestUpsertGroup_DefaultsAntiSpamOn(t *testing.T) {
	s := openTestStore(t)

	g, err := s.UpsertGroup(context.Background(), "g1", store.GroupPatch{})
	if err != nil {
		t.Fatal(err)
	}
	if !g.Settings.AntiSpam {
		t.Error("new group must default to anti-spam enabled")
	}
}

func TestUpsertGroup_PatchSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertGroup(ctx, "g1", store.GroupPatch{}); err != nil {
		t.Fatal(err)
	}
	settings := store.GroupSettings{AntiSpam: false, AutoReply: "brb"}
	if _, err := s.UpsertGroup(ctx, "g1", store.GroupPatch{Settings: &settings}); err != nil {
		t.Fatal(err)
	}

	g, err := s.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Settings.AntiSpam || g.Settings.AutoReply != "brb" {
		t.Errorf("settings = %+v", g.Settings)
	}
}

func TestTouchUser_CreatesAndCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.TouchUser(ctx, "u1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.TouchUser(ctx, "u1", ""); err != nil {
		t.Fatal(err)
	}

	u, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.MessageCount != 2 {
		t.Errorf("message count = %d, want 2", u.MessageCount)
	}
	// An empty name never clears the stored one.
	if u.Name != "Alice" {
		t.Errorf("name = %q, want Alice", u.Name)
	}
	if u.LastSeen.IsZero() {
		t.Error("last seen not set")
	}
}

func TestRecordCommand_BumpsUserAndGroup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordCommand(ctx, "u1", "g1"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordCommand(ctx, "u1", ""); err != nil {
		t.Fatal(err)
	}

	u, _ := s.GetUser(ctx, "u1")
	if u.CommandCount != 2 {
		t.Errorf("user command count = %d, want 2", u.CommandCount)
	}
	g, _ := s.GetGroup(ctx, "g1")
	if g == nil || g.CommandCount != 1 {
		t.Errorf("group = %+v, want command count 1", g)
	}
}

func TestAppendCommandLog(t *testing.T) {
	s := openTestStore(t)

	entry := store.CommandLogEntry{
		ID:        "log1",
		Command:   "ping",
		SubjectID: "u1",
		ChatID:    "c1",
		Success:   true,
		Duration:  120 * time.Millisecond,
		At:        time.Now(),
	}
	if err := s.AppendCommandLog(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	// Duplicate IDs violate the primary key.
	if err := s.AppendCommandLog(context.Background(), entry); err == nil {
		t.Error("duplicate log id accepted")
	}
}

func TestListUsersAndGroups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3"} {
		if _, err := s.UpsertUser(ctx, id, store.UserPatch{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.UpsertGroup(ctx, "g1", store.GroupPatch{}); err != nil {
		t.Fatal(err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Errorf("users = %d, want 3", len(users))
	}
	groups, err := s.ListGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Errorf("groups = %d, want 1", len(groups))
	}
}
