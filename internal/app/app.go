package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/vendorqueue/internal/adminapi"
	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/cursor"
	"github.com/yungbote/vendorqueue/internal/db"
	"github.com/yungbote/vendorqueue/internal/dispatcher"
	"github.com/yungbote/vendorqueue/internal/handlers"
	"github.com/yungbote/vendorqueue/internal/locks"
	"github.com/yungbote/vendorqueue/internal/metrics"
	"github.com/yungbote/vendorqueue/internal/oauth"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
	jobrepo "github.com/yungbote/vendorqueue/internal/repo"
	"github.com/yungbote/vendorqueue/internal/vendorhttp"
	"github.com/yungbote/vendorqueue/internal/watchdog"
	"github.com/yungbote/vendorqueue/internal/webhook"
)

// App is the composition root wiring every package into a runnable process,
// shared by the dispatcher CLI and (when RUN_SERVER is set) the admin/webhook
// HTTP server.
type App struct {
	Log        *logger.Logger
	DB         *gorm.DB
	Router     *gin.Engine
	Cfg        Config
	ConfigStore config.Store

	Repo       jobrepo.Repository
	Handlers   *handlers.Registry
	Dispatcher *dispatcher.Dispatcher
	Watchdog   *watchdog.Controller
	Webhooks   *webhook.Receiver
	Admin      *adminapi.Server
	OAuth      oauth.Manager

	cancel context.CancelFunc
}

func New() (*App, error) {
	log, err := logger.New(envLogMode())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("loading environment variables")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	gdb := pg.DB()

	rdb := db.NewRedisClient(log)

	backing := config.NewPostgresStore(gdb)
	cfgStore := config.NewCachingStore(backing, cfg.ConfigCacheTTL)
	seedConfig(cfgStore, cfg, log)

	locker, err := wireLocker(cfg, gdb, rdb, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	repo := jobrepo.New(gdb, log, jobrepo.PostgresCapabilities(), locker, 0)
	sink := metrics.NewMemory()

	oauthMgr := oauth.New(cfgStore, repo, nil, cfg.VendorTokenURL, cfg.VendorClientID, cfg.VendorClientSecret, log)

	vendor := vendorhttp.New(vendorhttp.Config{
		BaseURL:       cfg.VendorBaseURL,
		Tokens:        oauthMgr,
		Store:         cfgStore,
		Sink:          sink,
		Log:           log,
		RetryAttempts: cfg.RetryAttempts,
		Timeout:       cfg.HTTPTimeout,
	})

	cursors := cursor.New(cfgStore)
	registry := handlers.NewDefaultRegistry(vendor, repo, cursors, log)

	breaker := vendorhttp.NewBreaker(cfgStore, log)

	webhookStore := webhook.NewStore(gdb)
	receiver := webhook.NewReceiver(webhookStore, repo, cfgStore, sink, log).
		WithRateLimiter(webhook.NewRateLimiter(gdb, rdb, log))

	watchdogCtl := watchdog.New(repo, cfgStore, breaker, webhookStore, log)

	dispatcherInstance := dispatcher.New(repo, registry, cfgStore, watchdogCtl.Evaluate, log)

	admin := adminapi.NewServer(repo, cfgStore, sink, oauthMgr, breaker, receiver, adminapi.Options{
		RateLimitPerSecond: float64(cfg.AdminRateLimitRPS),
		RateLimitBurst:     cfg.AdminRateLimitBurst,
	}, log)

	router := admin.Router()
	router.POST("/webhooks/intake", receiver.Intake)

	return &App{
		Log:         log,
		DB:          gdb,
		Router:      router,
		Cfg:         cfg,
		ConfigStore: cfgStore,
		Repo:        repo,
		Handlers:    registry,
		Dispatcher:  dispatcherInstance,
		Watchdog:    watchdogCtl,
		Webhooks:    receiver,
		Admin:       admin,
		OAuth:       oauthMgr,
	}, nil
}

// Start launches no background goroutine of its own: the dispatcher's run
// loop (bounded or continuous) is driven explicitly by the CLI entrypoint
// as a single foreground process rather than a self-starting worker. Start
// exists for symmetry with Close: it keeps only the cancel func of a fresh
// context for Close to call, and the context itself is discarded, so the
// CLI's signal handling does not hang off it.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	_, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

func envLogMode() string {
	if mode := os.Getenv("LOG_MODE"); mode != "" {
		return mode
	}
	return "development"
}

// seedConfig writes the process-level secrets loaded from the environment
// into the dynamic config store on first boot, without clobbering values an
// operator has already rotated through the admin API.
func seedConfig(store config.Store, cfg Config, log *logger.Logger) {
	ctx := context.Background()
	seedIfAbsent(ctx, store, "admin.bearer_token.current", cfg.AdminBearerToken, log)
	seedIfAbsent(ctx, store, "admin.jwt_secret", cfg.AdminJWTSecret, log)
	seedIfAbsent(ctx, store, "webhook.secret.current", cfg.WebhookSecret, log)
}

func seedIfAbsent(ctx context.Context, store config.Store, key, value string, log *logger.Logger) {
	if value == "" {
		return
	}
	if _, found, err := store.Get(ctx, key); err != nil {
		log.Warn("failed to read config during seed", "key", key, "error", err)
		return
	} else if found {
		return
	}
	if err := store.Set(ctx, key, value); err != nil {
		log.Warn("failed to seed config", "key", key, "error", err)
	}
}

func wireLocker(cfg Config, gdb *gorm.DB, rdb *goredis.Client, log *logger.Logger) (locks.Locker, error) {
	switch cfg.LockBackend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("LOCK_BACKEND=redis requires REDIS_ADDR to be set")
		}
		return locks.NewRedisLocker(rdb, 0), nil
	case "postgres", "":
		return locks.NewPostgresLocker(gdb), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}
}
