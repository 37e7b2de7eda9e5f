// Package sqlite implements store.Store on a local SQLite database
// (standalone mode). Documents are stored as JSON in a single column;
// the schema is created on open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/waclaw/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	doc TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	doc TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS command_log (
	id TEXT PRIMARY KEY,
	command TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	success INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_log_subject ON command_log(subject_id);
`

// SQLiteStore implements store.Store backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// SQLite writes are single-threaded; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	return getDoc[store.User](ctx, s.db, "users", id)
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, id string, patch store.UserPatch) (*store.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &store.User{ID: id, LastSeen: time.Now()}
	}
	store.ApplyUserPatch(user, patch)
	if err := putDoc(ctx, s.db, "users", id, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*store.Group, error) {
	return getDoc[store.Group](ctx, s.db, "groups", id)
}

func (s *SQLiteStore) UpsertGroup(ctx context.Context, id string, patch store.GroupPatch) (*store.Group, error) {
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		group = &store.Group{ID: id, Settings: store.GroupSettings{AntiSpam: true}}
	}
	store.ApplyGroupPatch(group, patch)
	if err := putDoc(ctx, s.db, "groups", id, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *SQLiteStore) TouchUser(ctx context.Context, id, name string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		user = &store.User{ID: id}
	}
	if name != "" {
		user.Name = name
	}
	user.MessageCount++
	user.LastSeen = time.Now()
	return putDoc(ctx, s.db, "users", id, user)
}

func (s *SQLiteStore) RecordCommand(ctx context.Context, userID, groupID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		user = &store.User{ID: userID, LastSeen: time.Now()}
	}
	user.CommandCount++
	if err := putDoc(ctx, s.db, "users", userID, user); err != nil {
		return err
	}

	if groupID == "" {
		return nil
	}
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		group = &store.Group{ID: groupID, Settings: store.GroupSettings{AntiSpam: true}}
	}
	group.CommandCount++
	return putDoc(ctx, s.db, "groups", groupID, group)
}

func (s *SQLiteStore) AppendCommandLog(ctx context.Context, entry store.CommandLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_log (id, command, subject_id, chat_id, success, duration_ms, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Command, entry.SubjectID, entry.ChatID,
		boolToInt(entry.Success), entry.Duration.Milliseconds(), entry.At,
	)
	if err != nil {
		return fmt.Errorf("append command log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]store.User, error) {
	return listDocs[store.User](ctx, s.db, "users")
}

func (s *SQLiteStore) ListGroups(ctx context.Context) ([]store.Group, error) {
	return listDocs[store.Group](ctx, s.db, "groups")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func getDoc[T any](ctx context.Context, db *sql.DB, table, id string) (*T, error) {
	var doc string
	err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", table), id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", table, id, err)
	}
	var v T
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", table, id, err)
	}
	return &v, nil
}

func putDoc(ctx context.Context, db *sql.DB, table, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", table, id, err)
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`, table),
		id, string(doc), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("put %s %s: %w", table, id, err)
	}
	return nil
}

func listDocs[T any](ctx context.Context, db *sql.DB, table string) ([]T, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT doc FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			continue // skip corrupt documents
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
