package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Name:   "WaClaw",
			Prefix: "!",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "~/.waclaw/waclaw.db",
		},
		Cache: CacheConfig{
			MaxKeys:       8192,
			SweepInterval: "1m",
		},
		RateLimit: RateLimitConfig{
			Categories: map[string]CategoryLimit{
				"commands": {Max: 10, Window: "1m"},
				"media":    {Max: 5, Window: "5m"},
				"api":      {Max: 20, Window: "1m"},
				"messages": {Max: 30, Window: "1m"},
			},
			ViolationThreshold: 5,
			TempBanDuration:    "10m",
		},
		AntiSpam: AntiSpamConfig{
			ExemptAdmins:    true,
			FrequencyMax:    5,
			FrequencyWindow: "10s",
		},
		Queue: QueueConfig{
			MaxConcurrent: 5,
			MaxRetries:    3,
			BaseDelay:     "1s",
			BacklogLimit:  1000,
		},
		Maintenance: MaintenanceConfig{
			PruneSchedule:  "*/10 * * * *",
			BackupSchedule: "0 3 * * *",
			BackupDir:      "~/.waclaw/backups",
			BackupKeep:     7,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9190",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error — defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("WACLAW_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	envStr("WACLAW_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("WACLAW_DB_DRIVER", &c.Database.Driver)
	envStr("WACLAW_DB_PATH", &c.Database.Path)
	envStr("WACLAW_PREFIX", &c.Bot.Prefix)
	envStr("WACLAW_BACKUP_DIR", &c.Maintenance.BackupDir)
	envStr("WACLAW_METRICS_ADDR", &c.Metrics.Addr)

	// Auto-enable the channel when a bridge URL is provided via env.
	if c.Channels.WhatsApp.BridgeURL != "" {
		c.Channels.WhatsApp.Enabled = true
	}
	if c.Database.PostgresDSN != "" {
		c.Database.Driver = "postgres"
	}

	// Owner / bot-admin IDs from env (comma-separated)
	if v := os.Getenv("WACLAW_OWNER_IDS"); v != "" {
		c.Bot.OwnerIDs = strings.Split(v, ",")
	}
	if v := os.Getenv("WACLAW_BOTADMIN_IDS"); v != "" {
		c.Bot.BotAdminIDs = strings.Split(v, ",")
	}
	if v := os.Getenv("WACLAW_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = v == "true" || v == "1"
	}
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
