// Package commands holds the builtin command set. Commands receive their
// collaborators through Deps at registration time; nothing here reaches for
// globals.
package commands

import (
	"time"

	"github.com/nextlevelbuilder/waclaw/internal/cache"
	"github.com/nextlevelbuilder/waclaw/internal/command"
	"github.com/nextlevelbuilder/waclaw/internal/config"
	"github.com/nextlevelbuilder/waclaw/internal/queue"
	"github.com/nextlevelbuilder/waclaw/internal/ratelimit"
	"github.com/nextlevelbuilder/waclaw/internal/store"
)

// BroadcastQueue is the queue name broadcast deliveries run on.
const BroadcastQueue = "broadcast"

// Deps carries the collaborators the builtin commands need.
type Deps struct {
	Cfg       *config.Config
	Store     store.Store
	Queue     *queue.Manager
	Limiter   *ratelimit.Limiter
	Cache     *cache.Tiered
	Registry  *command.Registry // for help listings
	StartedAt time.Time
}

// All returns the full builtin command set.
func All(d Deps) []*command.Command {
	return []*command.Command{
		pingCommand(d),
		helpCommand(d),
		statsCommand(d),
		groupCommand(d),
		warnCommand(d),
		banCommand(d),
		unbanCommand(d),
		bangroupCommand(d),
		unbangroupCommand(d),
		premiumCommand(d),
		broadcastCommand(d),
		statusCommand(d),
	}
}
