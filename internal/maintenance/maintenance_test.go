package maintenance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/waclaw/internal/store"
)

func TestNewScheduler_SkipsInvalidSchedules(t *testing.T) {
	noop := func(_ context.Context) error { return nil }

	s := NewScheduler([]Job{
		{Name: "good", Schedule: "*/5 * * * *", Run: noop},
		{Name: "bad", Schedule: "whenever", Run: noop},
		{Name: "also-good", Schedule: "0 3 * * *", Run: noop},
	})

	if len(s.jobs) != 2 {
		t.Fatalf("scheduled jobs = %d, want 2 valid", len(s.jobs))
	}
	for _, job := range s.jobs {
		if job.Name == "bad" {
			t.Error("invalid schedule survived validation")
		}
	}
}

// listStore serves canned documents for backup tests.
type listStore struct {
	store.Store
	users  []store.User
	groups []store.Group
}

func (s *listStore) ListUsers(_ context.Context) ([]store.User, error)   { return s.users, nil }
func (s *listStore) ListGroups(_ context.Context) ([]store.Group, error) { return s.groups, nil }

func TestBackupJob_WritesDocument(t *testing.T) {
	dir := t.TempDir()
	st := &listStore{
		users:  []store.User{{ID: "u1", Name: "Alice"}},
		groups: []store.Group{{ID: "g1"}},
	}

	job := BackupJob("0 3 * * *", dir, 7, st)
	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "waclaw-*.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("backup files = %v (%v), want exactly one", matches, err)
	}

	raw, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	var doc backupDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("backup not valid JSON: %v", err)
	}
	if len(doc.Users) != 1 || doc.Users[0].ID != "u1" {
		t.Errorf("backup users = %+v", doc.Users)
	}
	if len(doc.Groups) != 1 || doc.Groups[0].ID != "g1" {
		t.Errorf("backup groups = %+v", doc.Groups)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("backup missing timestamp")
	}
}

func TestTrimBackups(t *testing.T) {
	dir := t.TempDir()

	names := []string{
		"waclaw-20250601-030000.json",
		"waclaw-20250602-030000.json",
		"waclaw-20250603-030000.json",
		"waclaw-20250604-030000.json",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o640); err != nil {
			t.Fatal(err)
		}
	}
	// An unrelated file is never touched.
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep"), 0o640); err != nil {
		t.Fatal(err)
	}

	if err := trimBackups(dir, 2); err != nil {
		t.Fatal(err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "waclaw-*.json"))
	if len(matches) != 2 {
		t.Fatalf("remaining backups = %v, want newest 2", matches)
	}
	// The newest files survive.
	for _, m := range matches {
		base := filepath.Base(m)
		if base != names[2] && base != names[3] {
			t.Errorf("unexpected survivor %s", base)
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated file was removed")
	}
}

func TestTrimBackups_UnderLimitNoop(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "waclaw-20250601-030000.json")
	if err := os.WriteFile(name, []byte("{}"), 0o640); err != nil {
		t.Fatal(err)
	}

	if err := trimBackups(dir, 7); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(name); err != nil {
		t.Error("backup under the limit was removed")
	}
}
