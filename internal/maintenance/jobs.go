package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/cache"
	"github.com/nextlevelbuilder/waclaw/internal/dispatch"
	"github.com/nextlevelbuilder/waclaw/internal/queue"
	"github.com/nextlevelbuilder/waclaw/internal/store"
)

const cooldownMaxAge = 24 * time.Hour

// PruneJob evicts expired cache entries, drops stale cooldowns, and snapshots
// the queues so a crash between backups loses as little as possible.
func PruneJob(schedule string, c *cache.Tiered, d *dispatch.Dispatcher, q *queue.Manager) Job {
	return Job{
		Name:     "prune",
		Schedule: schedule,
		Run: func(_ context.Context) error {
			removed := c.Prune()
			cooldowns := d.PruneCooldowns(cooldownMaxAge)
			q.Persist()

			slog.Debug("prune pass complete", "cache_removed", removed, "cooldowns_removed", cooldowns)
			return nil
		},
	}
}

// backupDocument is the on-disk backup format.
type backupDocument struct {
	CreatedAt time.Time     `json:"created_at"`
	Users     []store.User  `json:"users"`
	Groups    []store.Group `json:"groups"`
}

// BackupJob exports all user and group documents to a timestamped JSON file
// and trims the backup directory down to keep files.
func BackupJob(schedule, dir string, keep int, st store.Store) Job {
	if keep <= 0 {
		keep = 7
	}
	return Job{
		Name:     "backup",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("create backup dir: %w", err)
			}

			users, err := st.ListUsers(ctx)
			if err != nil {
				return fmt.Errorf("list users for backup: %w", err)
			}
			groups, err := st.ListGroups(ctx)
			if err != nil {
				return fmt.Errorf("list groups for backup: %w", err)
			}

			doc := backupDocument{CreatedAt: time.Now(), Users: users, Groups: groups}
			raw, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("encode backup: %w", err)
			}

			name := fmt.Sprintf("waclaw-%s.json", time.Now().Format("20060102-150405"))
			dest := filepath.Join(dir, name)
			if err := os.WriteFile(dest, raw, 0o640); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}

			slog.Info("backup written", "path", dest, "users", len(users), "groups", len(groups))
			return trimBackups(dir, keep)
		},
	}
}

// trimBackups deletes the oldest backup files beyond keep.
func trimBackups(dir string, keep int) error {
	matches, err := filepath.Glob(filepath.Join(dir, "waclaw-*.json"))
	if err != nil {
		return err
	}
	if len(matches) <= keep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-keep] {
		if err := os.Remove(old); err != nil {
			slog.Warn("old backup removal failed", "path", old, "error", err)
		}
	}
	return nil
}
