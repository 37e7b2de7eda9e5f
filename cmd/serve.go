package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/waclaw/internal/antispam"
	"github.com/nextlevelbuilder/waclaw/internal/bus"
	"github.com/nextlevelbuilder/waclaw/internal/cache"
	"github.com/nextlevelbuilder/waclaw/internal/channels"
	"github.com/nextlevelbuilder/waclaw/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/waclaw/internal/command"
	"github.com/nextlevelbuilder/waclaw/internal/commands"
	"github.com/nextlevelbuilder/waclaw/internal/config"
	"github.com/nextlevelbuilder/waclaw/internal/dispatch"
	"github.com/nextlevelbuilder/waclaw/internal/maintenance"
	"github.com/nextlevelbuilder/waclaw/internal/media"
	"github.com/nextlevelbuilder/waclaw/internal/queue"
	"github.com/nextlevelbuilder/waclaw/internal/ratelimit"
	"github.com/nextlevelbuilder/waclaw/internal/router"
	"github.com/nextlevelbuilder/waclaw/internal/store"
	"github.com/nextlevelbuilder/waclaw/internal/store/pg"
	"github.com/nextlevelbuilder/waclaw/internal/store/sqlite"
)

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Tiered cache: in-memory always, bbolt tier when a persist dir is set.
	memTier := cache.NewMemory(cfg.Cache.MaxKeys)
	var persistTier cache.Store
	if cfg.Cache.PersistDir != "" {
		bolt, boltErr := cache.NewBolt(config.ExpandHome(cfg.Cache.PersistDir))
		if boltErr != nil {
			slog.Warn("persistent cache tier unavailable, running memory-only", "error", boltErr)
		} else {
			persistTier = bolt
			defer bolt.Close()
		}
	}
	tiered := cache.NewTiered(memTier, persistTier)

	st, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	limits := make(map[string]ratelimit.Limit, len(cfg.RateLimit.Categories))
	for name, cl := range cfg.RateLimit.Categories {
		limits[name] = ratelimit.Limit{Max: cl.Max, Window: cl.WindowDuration()}
	}
	tempBan, err := time.ParseDuration(cfg.RateLimit.TempBanDuration)
	if err != nil {
		tempBan = 10 * time.Minute
	}
	limiter := ratelimit.New(tiered, limits, cfg.RateLimit.ViolationThreshold, tempBan)

	freqWindow, err := time.ParseDuration(cfg.AntiSpam.FrequencyWindow)
	if err != nil {
		freqWindow = 10 * time.Second
	}
	spam := antispam.New(tiered, antispam.Config{
		Whitelist:       cfg.AntiSpam.Whitelist,
		ExemptAdmins:    cfg.AntiSpam.ExemptAdmins,
		FrequencyMax:    cfg.AntiSpam.FrequencyMax,
		FrequencyWindow: freqWindow,
	})

	msgBus := bus.NewMessageBus()
	channelMgr := channels.NewManager(msgBus)

	var moderator antispam.Moderator
	if cfg.Channels.WhatsApp.Enabled {
		wa, waErr := whatsapp.New(cfg.Channels.WhatsApp, msgBus)
		if waErr != nil {
			slog.Error("failed to initialize whatsapp channel", "error", waErr)
			os.Exit(1)
		}
		channelMgr.Register(wa)
		moderator = wa
		slog.Info("whatsapp channel enabled", "bridge_url", cfg.Channels.WhatsApp.BridgeURL)
	} else {
		slog.Warn("no channel enabled; set channels.whatsapp or WACLAW_BRIDGE_URL")
	}

	enforcer := antispam.NewEnforcer(channelMgr, moderator, &storeBanner{st: st})

	baseDelay, err := time.ParseDuration(cfg.Queue.BaseDelay)
	if err != nil {
		baseDelay = time.Second
	}
	queueMgr := queue.NewManager(queue.Config{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		MaxRetries:    cfg.Queue.MaxRetries,
		BaseDelay:     baseDelay,
		BacklogLimit:  cfg.Queue.BacklogLimit,
	}, tiered)
	defer queueMgr.Close()

	queueMgr.RegisterQueue(commands.BroadcastQueue, func(ctx context.Context, msg queue.Message) error {
		var payload commands.BroadcastPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode broadcast payload: %w", err)
		}
		return channelMgr.SendText(ctx, payload.ChatID, payload.Text)
	})
	if restored, restoreErr := queueMgr.Restore(commands.BroadcastQueue); restoreErr != nil {
		slog.Warn("broadcast queue restore failed", "error", restoreErr)
	} else if restored > 0 {
		slog.Info("broadcast queue restored", "messages", restored)
	}

	dispatcher := dispatch.New(cfg, limiter, spam, st, channelMgr)

	registry := command.NewRegistry(nil)
	deps := commands.Deps{
		Cfg:       cfg,
		Store:     st,
		Queue:     queueMgr,
		Limiter:   limiter,
		Cache:     tiered,
		Registry:  registry,
		StartedAt: time.Now(),
	}
	registry.Load(commands.All(deps))

	var downloader router.Downloader
	if dl, dlErr := media.NewDownloader(config.ExpandHome("~/.waclaw/media")); dlErr != nil {
		slog.Warn("media downloads disabled", "error", dlErr)
	} else {
		downloader = dl
	}

	rt := router.New(cfg, registry, dispatcher, spam, enforcer, limiter, st, channelMgr, downloader)

	// Hot reload: the registry is rebuilt so prefix/permission changes in the
	// command closures pick up the fresh config.
	if err := config.Watch(ctx, cfgPath, cfg, func() {
		registry.Load(commands.All(deps))
	}); err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	}

	sched := maintenance.NewScheduler([]maintenance.Job{
		maintenance.PruneJob(cfg.Maintenance.PruneSchedule, tiered, dispatcher, queueMgr),
		maintenance.BackupJob(
			cfg.Maintenance.BackupSchedule,
			config.ExpandHome(cfg.Maintenance.BackupDir),
			cfg.Maintenance.BackupKeep,
			st,
		),
	})

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { rt.Run(gctx, msgBus); return nil })
	g.Go(func() error { channelMgr.RunOutbound(gctx); return nil })
	g.Go(func() error { queueMgr.RunHealthLoop(gctx); return nil })
	g.Go(func() error { sched.Run(gctx); return nil })
	g.Go(func() error { consumeQueueEvents(gctx, queueMgr); return nil })

	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr) })
	}

	slog.Info("waclaw starting",
		"version", Version,
		"prefix", cfg.Prefix(),
		"commands", registry.Len(),
		"store", cfg.Database.Driver,
	)

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)

		// Pending queue work survives the restart via the cache snapshot.
		queueMgr.Persist()
		channelMgr.StopAll(context.Background())
		cancel()
	}()

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// openStore selects the document store backend from config.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver selected but WACLAW_POSTGRES_DSN is not set")
		}
		return pg.Open(cfg.Database.PostgresDSN)
	default:
		return sqlite.Open(config.ExpandHome(cfg.Database.Path))
	}
}

// storeBanner adapts the document store to the anti-spam Banner interface.
type storeBanner struct {
	st store.Store
}

func (b *storeBanner) BanUser(ctx context.Context, subjectID, reason string) error {
	_, err := b.st.UpsertUser(ctx, subjectID, store.UserPatch{
		Banned:    store.Ptr(true),
		BanReason: store.Ptr(reason),
	})
	return err
}

// consumeQueueEvents drains the queue event channel. Terminal failures are
// the interesting ones; completions stay at debug.
func consumeQueueEvents(ctx context.Context, qm *queue.Manager) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-qm.Events():
			switch ev.Kind {
			case queue.EventFailed:
				slog.Error("queued message failed permanently",
					"queue", ev.Queue, "id", ev.Message.ID, "attempts", ev.Attempts, "error", ev.Err)
			case queue.EventRetry:
				slog.Debug("queued message will retry",
					"queue", ev.Queue, "id", ev.Message.ID, "attempt", ev.Attempts, "next_in", ev.NextAttemptIn)
			default:
				slog.Debug("queued message completed",
					"queue", ev.Queue, "id", ev.Message.ID, "duration", ev.ProcessingTime)
			}
		}
	}
}

// serveMetrics exposes Prometheus metrics and a liveness probe.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
