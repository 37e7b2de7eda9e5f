package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const bucketEntries = "entries"

// persistedEntry is the msgpack-encoded on-disk form of a cache entry.
type persistedEntry struct {
	Value     []byte
	ExpiresAt int64 // unix nano, 0 = never
}

func (e persistedEntry) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() > e.ExpiresAt
}

// Bolt is the persistent cache tier backed by bbolt.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) a bbolt database at dataDir/cache.db.
func NewBolt(dataDir string) (*Bolt, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	path := filepath.Join(dataDir, "cache.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketEntries))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(key string) ([]byte, bool, error) {
	var entry persistedEntry
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketEntries)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := msgpack.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("unmarshal cache entry %s: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	if entry.expired(time.Now()) {
		_ = b.Del(key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// TTL reports the remaining lifetime of a key. Zero with found=true means
// the entry has no expiry.
func (b *Bolt) TTL(key string) (time.Duration, bool, error) {
	var entry persistedEntry
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketEntries)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := msgpack.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("unmarshal cache entry %s: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return 0, false, err
	}
	if entry.ExpiresAt == 0 {
		return 0, true, nil
	}
	left := time.Until(time.Unix(0, entry.ExpiresAt))
	if left <= 0 {
		return 0, false, nil
	}
	return left, true, nil
}

func (b *Bolt) Set(key string, value []byte, ttl time.Duration) error {
	entry := persistedEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEntries)).Put([]byte(key), data)
	})
}

func (b *Bolt) Del(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEntries)).Delete([]byte(key))
	})
}

func (b *Bolt) Keys(prefix string) ([]string, error) {
	var keys []string
	now := time.Now()
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEntries)).ForEach(func(k, v []byte) error {
			if !strings.HasPrefix(string(k), prefix) {
				return nil
			}
			var entry persistedEntry
			if err := msgpack.Unmarshal(v, &entry); err != nil {
				return nil // skip corrupt entries
			}
			if entry.expired(now) {
				return nil
			}
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Compact removes expired entries from disk. Called by the maintenance scheduler.
func (b *Bolt) Compact() (int, error) {
	removed := 0
	now := time.Now()
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketEntries))
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry persistedEntry
			if err := msgpack.Unmarshal(v, &entry); err != nil {
				continue
			}
			if entry.expired(now) {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}
