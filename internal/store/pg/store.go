// Package pg implements store.Store backed by Postgres (managed mode).
// The schema lives in migrations/ and is applied with `waclaw migrate`.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/waclaw/internal/store"
)

// PGStore implements store.Store on Postgres via the pgx stdlib driver.
type PGStore struct {
	db *sql.DB
}

// Open connects to Postgres using the given DSN.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PGStore{db: db}, nil
}

// DB exposes the raw handle for migrations.
func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	ok, err := s.getDoc(ctx, "users", id, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) UpsertUser(ctx context.Context, id string, patch store.UserPatch) (*store.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &store.User{ID: id, LastSeen: time.Now()}
	}
	store.ApplyUserPatch(user, patch)
	if err := s.putDoc(ctx, "users", id, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *PGStore) GetGroup(ctx context.Context, id string) (*store.Group, error) {
	var g store.Group
	ok, err := s.getDoc(ctx, "groups", id, &g)
	if err != nil || !ok {
		return nil, err
	}
	return &g, nil
}

func (s *PGStore) UpsertGroup(ctx context.Context, id string, patch store.GroupPatch) (*store.Group, error) {
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		group = &store.Group{ID: id, Settings: store.GroupSettings{AntiSpam: true}}
	}
	store.ApplyGroupPatch(group, patch)
	if err := s.putDoc(ctx, "groups", id, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *PGStore) TouchUser(ctx context.Context, id, name string) error {
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
	return s.putDoc(ctx, "users", id, user)
}

func (s *PGStore) RecordCommand(ctx context.Context, userID, groupID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		user = &store.User{ID: userID, LastSeen: time.Now()}
	}
	user.CommandCount++
	if err := s.putDoc(ctx, "users", userID, user); err != nil {
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
	return s.putDoc(ctx, "groups", groupID, group)
}

func (s *PGStore) AppendCommandLog(ctx context.Context, entry store.CommandLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_log (id, command, subject_id, chat_id, success, duration_ms, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Command, entry.SubjectID, entry.ChatID,
		entry.Success, entry.Duration.Milliseconds(), entry.At,
	)
	if err != nil {
		return fmt.Errorf("append command log: %w", err)
	}
	return nil
}

func (s *PGStore) ListUsers(ctx context.Context) ([]store.User, error) {
	var users []store.User
	err := s.listDocs(ctx, "users", func(doc []byte) {
		var u store.User
		if json.Unmarshal(doc, &u) == nil {
			users = append(users, u)
		}
	})
	return users, err
}

func (s *PGStore) ListGroups(ctx context.Context) ([]store.Group, error) {
	var groups []store.Group
	err := s.listDocs(ctx, "groups", func(doc []byte) {
		var g store.Group
		if json.Unmarshal(doc, &g) == nil {
			groups = append(groups, g)
		}
	})
	return groups, err
}

func (s *PGStore) Close() error {
	return s.db.Close()
}

func (s *PGStore) getDoc(ctx context.Context, table, id string, v any) (bool, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE id = $1", table), id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s %s: %w", table, id, err)
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return false, fmt.Errorf("decode %s %s: %w", table, id, err)
	}
	return true, nil
}

func (s *PGStore) putDoc(ctx context.Context, table, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", table, id, err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`, table),
		id, doc, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("put %s %s: %w", table, id, err)
	}
	return nil
}

func (s *PGStore) listDocs(ctx context.Context, table string, each func([]byte)) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT doc FROM %s", table))
	if err != nil {
		return fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return err
		}
		each(doc)
	}
	return rows.Err()
}
