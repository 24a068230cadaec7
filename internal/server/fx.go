// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/release-tracker/internal/admin"
	"github.com/JakeFAU/release-tracker/internal/api"
	"github.com/JakeFAU/release-tracker/internal/clock/system"
	"github.com/JakeFAU/release-tracker/internal/config"
	collyfetcher "github.com/JakeFAU/release-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/release-tracker/internal/hash/sha256"
	"github.com/JakeFAU/release-tracker/internal/id/uuid"
	"github.com/JakeFAU/release-tracker/internal/logging"
	"github.com/JakeFAU/release-tracker/internal/notify"
	"github.com/JakeFAU/release-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/release-tracker/internal/policy/simple"
	memorypublisher "github.com/JakeFAU/release-tracker/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/release-tracker/internal/publisher/pubsub"
	"github.com/JakeFAU/release-tracker/internal/reconcile"
	"github.com/JakeFAU/release-tracker/internal/refresh"
	"github.com/JakeFAU/release-tracker/internal/scheduler"
	"github.com/JakeFAU/release-tracker/internal/source/chromium"
	"github.com/JakeFAU/release-tracker/internal/source/github"
	gcsstorage "github.com/JakeFAU/release-tracker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/release-tracker/internal/storage/local"
	memorystorage "github.com/JakeFAU/release-tracker/internal/storage/memory"
	pgstore "github.com/JakeFAU/release-tracker/internal/storage/postgres"
	"github.com/JakeFAU/release-tracker/internal/telemetry"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	store           tracker.Store
	apiServer       *api.Server
	orchestrator    *refresh.Orchestrator
	scheduler       *scheduler.Scheduler
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	tracerShutdown  func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("database_configured", cfg.Database.DSN != ""),
		zap.String("storage_backend", cfg.Storage.Backend),
	)
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Refresh runs one refresh cycle synchronously.
func (a *App) Refresh(ctx context.Context) refresh.Result {
	return a.orchestrator.Run(ctx)
}

// Run serves the API and, when enabled, the refresh scheduler until the
// context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Refresh.Enabled {
		go func() {
			a.logger.Info("scheduler started", zap.Int("default_interval_hours", a.cfg.Refresh.IntervalHours))
			a.scheduler.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// Close releases every external handle. It is safe to call once after Run
// or Refresh returns.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	return nil
}

// abort releases whatever Build created before err and returns err.
func (a *App) abort(ctx context.Context, err error) error {
	a.logger.Error("build failed, releasing partial dependencies", zap.Error(err))
	_ = a.Close(ctx)
	return err
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	// Sync fails on non-file stderr; nothing useful to do about it.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(
		cfg.Logging.Development,
		logging.ServiceFields(cfg.Application.ServiceName, cfg.Application.Version)...,
	)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Application.ServiceName,
		Version:     cfg.Application.Version,
	})
	if err != nil {
		return nil, app.abort(ctx, fmt.Errorf("tracer init failed: %w", err))
	}
	app.tracerShutdown = tp.Shutdown

	app.logger.Info("building application dependencies")
	clock := system.New()
	ids := uuid.New()

	app.store = setupStore(ctx, app, clock.Now())

	blobStore, err := setupBlobStore(ctx, app)
	if err != nil {
		return nil, app.abort(ctx, err)
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, app.abort(ctx, err)
	}

	reconciler := reconcile.New(app.store, clock, cfg.Refresh.Concurrency, logger.Named("reconcile"))
	settings, err := reconciler.EnsureSettings(ctx, tracker.Settings{
		SourceURL:       cfg.Sources.Chromium.URL,
		RefreshInterval: cfg.Refresh.IntervalHours,
	})
	if err != nil {
		return nil, app.abort(ctx, fmt.Errorf("settings init failed: %w", err))
	}

	notifier := notify.New(notify.Config{
		Concurrency: cfg.Notifier.Concurrency,
		Timeout:     time.Duration(cfg.Notifier.TimeoutSeconds) * time.Second,
	}, app.store, nil, logger.Named("notify"))

	sources := setupSources(app, settings, blobStore)
	app.orchestrator = refresh.New(
		sources,
		reconciler,
		notifier,
		publisher,
		clock,
		uuid.WithPrefix("refresh"),
		refresh.Config{Topic: cfg.PubSub.TopicName},
		logger.Named("refresh"),
	)
	app.scheduler = scheduler.New(app.orchestrator, reconciler, scheduler.Config{
		DefaultIntervalHours: cfg.Refresh.IntervalHours,
		OnStartup:            cfg.Refresh.OnStartup,
	}, logger.Named("scheduler"))

	svc := admin.New(reconciler, app.store, notifier, app.orchestrator, ids, clock, logger.Named("admin"))
	app.apiServer = api.NewServer(svc, *cfg, logger.Named("api"))

	return app, nil
}

// setupStore never fails: an unusable database degrades to the seeded
// in-memory store.
func setupStore(ctx context.Context, app *App, now time.Time) tracker.Store {
	db := app.cfg.Database
	if db.DSN == "" {
		app.logger.Warn("no database DSN configured, using in-memory store")
		return memorystorage.NewSeededStore(now)
	}
	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:             db.DSN,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
		ConnectTimeout:  time.Duration(db.ConnectTimeoutSeconds) * time.Second,
		Migrate:         db.Migrate,
	})
	if err != nil {
		app.logger.Error("postgres unavailable, falling back to in-memory store", zap.Error(err))
		return memorystorage.NewSeededStore(now)
	}
	app.logger.Info("postgres store initialized")
	return store
}

func setupBlobStore(ctx context.Context, app *App) (tracker.BlobStore, error) {
	var blobStore tracker.BlobStore
	var err error
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS snapshot backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.Bucket,
			Prefix: app.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS snapshot backend", zap.String("bucket", app.cfg.Storage.Bucket))
	case "local":
		app.logger.Info("using local snapshot backend")
		blobStore, err = localstorage.New(app.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local snapshot backend", zap.String("path", app.cfg.Storage.Local.BaseDir))
	default:
		app.logger.Info("using in-memory snapshot backend")
		blobStore = memorystorage.NewBlobStore()
	}
	return blobStore, nil
}

func setupPublisher(ctx context.Context, app *App) (tracker.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient.Publisher(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

// setupSources builds both upstream sources over one shared fetcher. The
// chromium URL comes from stored settings so admin edits survive restarts.
func setupSources(app *App, settings tracker.Settings, snapshots tracker.BlobStore) []tracker.Source {
	cfg := app.cfg
	var limiter tracker.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.DefaultRPS,
			DefaultBurst: cfg.RateLimit.DefaultBurst,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("default_rps", cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", cfg.RateLimit.DefaultBurst),
		)
	} else {
		limiter = simple.New()
		app.logger.Info("rate limiter disabled, using simple policy")
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        cfg.HTTP.Timeout(),
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	}, limiter, app.logger.Named("fetcher"))
	app.logger.Info("using colly fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))

	chromiumURL := settings.SourceURL
	if chromiumURL == "" {
		chromiumURL = cfg.Sources.Chromium.URL
	}
	return []tracker.Source{
		chromium.New(chromium.Config{
			URL:          chromiumURL,
			SnapshotPath: cfg.Sources.Chromium.SnapshotPath,
			Timeout:      cfg.HTTP.Timeout(),
		}, fetcher, snapshots, sha256.New(), app.logger.Named("chromium")),
		github.New(github.Config{
			URL:      cfg.Sources.Releases.URL,
			Token:    cfg.Sources.Releases.Token,
			PerPage:  cfg.Sources.Releases.PerPage,
			MaxPages: cfg.Sources.Releases.MaxPages,
			Timeout:  cfg.HTTP.Timeout(),
		}, fetcher, app.logger.Named("github")),
	}
}
