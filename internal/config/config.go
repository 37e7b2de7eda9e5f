package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the WaClaw bot.
type Config struct {
	Bot         BotConfig         `json:"bot"`
	Channels    ChannelsConfig    `json:"channels"`
	Database    DatabaseConfig    `json:"database,omitempty"`
	Cache       CacheConfig       `json:"cache,omitempty"`
	RateLimit   RateLimitConfig   `json:"rate_limit,omitempty"`
	AntiSpam    AntiSpamConfig    `json:"anti_spam,omitempty"`
	Queue       QueueConfig       `json:"queue,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Metrics     MetricsConfig     `json:"metrics,omitempty"`
	mu          sync.RWMutex
}

// BotConfig holds bot identity and command parsing settings.
type BotConfig struct {
	Name        string   `json:"name,omitempty"`
	Prefix      string   `json:"prefix,omitempty"`       // command prefix (default "!")
	OwnerIDs    []string `json:"owner_ids,omitempty"`    // subjects with the "owner" capability
	BotAdminIDs []string `json:"botadmin_ids,omitempty"` // subjects with the "botadmin" capability
	AutoReply   string   `json:"auto_reply,omitempty"`   // fallback text for non-command DMs ("" = disabled)
}

// ChannelsConfig holds transport channel settings.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// WhatsAppConfig configures the WhatsApp bridge channel.
// The bridge handles the actual WhatsApp protocol; we speak JSON over WebSocket.
type WhatsAppConfig struct {
	Enabled     bool     `json:"enabled"`
	BridgeURL   string   `json:"bridge_url"`
	AllowFrom   []string `json:"allow_from,omitempty"`
	GroupPolicy string   `json:"group_policy,omitempty"` // "open" (default), "allowlist", "disabled"
	SendRPS     float64  `json:"send_rps,omitempty"`     // outbound pacing, messages/sec (default 5)
	SendBurst   int      `json:"send_burst,omitempty"`   // outbound pacing burst (default 10)
}

// DatabaseConfig selects the document store backend.
// PostgresDSN is NEVER read from the config file (secret) — env WACLAW_POSTGRES_DSN only.
type DatabaseConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	Path        string `json:"path,omitempty"`   // sqlite file (default "~/.waclaw/waclaw.db")
	PostgresDSN string `json:"-"`
}

// CacheConfig configures the tiered key-value cache.
type CacheConfig struct {
	MaxKeys        int    `json:"max_keys,omitempty"`        // memory tier cap (default 8192)
	PersistDir     string `json:"persist_dir,omitempty"`     // bbolt tier dir ("" = memory only)
	SweepInterval  string `json:"sweep_interval,omitempty"`  // expired-entry sweep (default "1m")
	DefaultTTLSecs int    `json:"default_ttl_secs,omitempty"`
}

// CategoryLimit is a {max, window} pair for one rate-limit category.
type CategoryLimit struct {
	Max      int    `json:"max"`
	Window   string `json:"window"` // Go duration string
	window   time.Duration
	resolved bool
}

// WindowDuration returns the parsed window, defaulting to one minute.
func (c *CategoryLimit) WindowDuration() time.Duration {
	if !c.resolved {
		d, err := time.ParseDuration(c.Window)
		if err != nil || d <= 0 {
			d = time.Minute
		}
		c.window = d
		c.resolved = true
	}
	return c.window
}

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	Categories         map[string]CategoryLimit `json:"categories,omitempty"`
	ViolationThreshold int                      `json:"violation_threshold,omitempty"` // temp ban after N violations/hour (default 5)
	TempBanDuration    string                   `json:"temp_ban_duration,omitempty"`   // default "10m"
}

// AntiSpamConfig configures the spam scoring engine.
type AntiSpamConfig struct {
	Enabled         *bool    `json:"enabled,omitempty"` // default true (nil = enabled)
	Whitelist       []string `json:"whitelist,omitempty"`
	ExemptAdmins    bool     `json:"exempt_admins,omitempty"` // group admins bypass checks
	FrequencyMax    int      `json:"frequency_max,omitempty"` // default 5 msgs
	FrequencyWindow string   `json:"frequency_window,omitempty"` // default "10s"
}

// QueueConfig configures the priority message queue.
type QueueConfig struct {
	MaxConcurrent int    `json:"max_concurrent,omitempty"` // per-queue in-flight bound (default 5)
	MaxRetries    int    `json:"max_retries,omitempty"`    // default 3
	BaseDelay     string `json:"base_delay,omitempty"`     // backoff base (default "1s")
	BacklogLimit  int    `json:"backlog_limit,omitempty"`  // backlog flag threshold (default 1000)
}

// MaintenanceConfig configures scheduled maintenance jobs (cron expressions).
type MaintenanceConfig struct {
	PruneSchedule  string `json:"prune_schedule,omitempty"`  // default "*/10 * * * *"
	BackupSchedule string `json:"backup_schedule,omitempty"` // default "0 3 * * *"
	BackupDir      string `json:"backup_dir,omitempty"`      // default "~/.waclaw/backups"
	BackupKeep     int    `json:"backup_keep,omitempty"`     // retained backup files (default 7)
}

// MetricsConfig configures the Prometheus/health HTTP listener.
type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9190"
}

// IsOwner reports whether a subject ID is in the owner list.
func (c *Config) IsOwner(subjectID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.Bot.OwnerIDs {
		if id == subjectID {
			return true
		}
	}
	return false
}

// IsBotAdmin reports whether a subject ID is an owner or bot admin.
func (c *Config) IsBotAdmin(subjectID string) bool {
	if c.IsOwner(subjectID) {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.Bot.BotAdminIDs {
		if id == subjectID {
			return true
		}
	}
	return false
}

// Prefix returns the command prefix.
func (c *Config) Prefix() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Bot.Prefix
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the config watcher on hot reload.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bot = src.Bot
	c.Channels = src.Channels
	c.Database = src.Database
	c.Cache = src.Cache
	c.RateLimit = src.RateLimit
	c.AntiSpam = src.AntiSpam
	c.Queue = src.Queue
	c.Maintenance = src.Maintenance
	c.Metrics = src.Metrics
}

// AntiSpamEnabled reports whether the anti-spam engine is active.
func (c *Config) AntiSpamEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AntiSpam.Enabled == nil || *c.AntiSpam.Enabled
}
