package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/markbates/goth"
	"github.com/redis/go-redis/v9"
	gothfiber "github.com/shareed2k/goth_fiber"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/CourseFox/app/controllers"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CourseFox/internal/pkg/oauth"
	"github.com/ManuelReschke/CourseFox/internal/pkg/router"
	"github.com/ManuelReschke/CourseFox/internal/pkg/session"
)

const shutdownTimeout = 30 * time.Second

func main() {
	env.SetupEnvFile()
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("[CourseFox] %v", err)
	}
}

// Application holds the wired components of one process.
type Application struct {
	App     *fiber.App
	Manager *jobqueue.Manager
	cache   *redis.Client
}

func run(ctx context.Context) error {
	application := NewApplication()
	defer func() { _ = application.cache.Close() }()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))

	g, gctx := errgroup.WithContext(ctx)
	application.Manager.Start()

	g.Go(func() error {
		log.Infof("[CourseFox] Listening on %s", addr)
		return application.App.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("[CourseFox] Shutting down...")
		err := application.App.ShutdownWithTimeout(shutdownTimeout)
		// Workers stop after the server so in-flight webhooks can still enqueue.
		application.Manager.Stop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// NewApplication wires configuration, stores, the billing engine, job
// workers and HTTP routes.
func NewApplication() *Application {
	cfg := billing.ConfigFromEnv()
	if cfg.StripeSecretKey == "" {
		log.Warn("[CourseFox] STRIPE_SECRET_KEY is not set, provider calls will fail")
	}

	client := cache.SetupCache()
	store := cache.NewRedisStore(client)

	var audit billing.AuditLog
	if cfg.AuditEnabled {
		db, err := database.Setup()
		if err != nil {
			log.Errorf("[CourseFox] Webhook audit log disabled: %v", err)
		} else {
			audit = billing.NewAuditLog(db)
		}
	}

	provider := billing.NewStripeClient(cfg)
	syncer := billing.NewSyncer(provider, store, cfg)

	queue := jobqueue.NewQueue(client, jobqueue.Options{
		Workers:     env.GetEnvInt("JOBQUEUE_WORKERS", 3),
		RetryDelay:  env.GetEnvDuration("JOBQUEUE_RETRY_DELAY", 30*time.Second),
		StuckMaxAge: env.GetEnvDuration("JOBQUEUE_STUCK_MAX_AGE", 10*time.Minute),
	})
	dispatcher := jobqueue.NewSyncDispatcher(queue, syncer, audit)
	manager := jobqueue.NewManager(queue)
	manager.SetReconciler(cfg.ReconcileInterval, dispatcher.Reconcile)

	service := billing.NewService(syncer, provider, store, dispatcher, cfg)
	gateway := billing.NewGateway(cfg, dispatcher, audit)

	sessionStore := session.NewSessionStore(client)
	oauth.Setup(client, cfg.PublicBaseURL)

	app := fiber.New(fiber.Config{
		AppName:   "CourseFox",
		BodyLimit: 1 * 1024 * 1024, // 1 MiB
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Dependencies{
		SessionStore: sessionStore,
		Billing:      controllers.NewBillingController(service, gateway, cfg.ReturnURL),
		Auth: controllers.NewAuthController(sessionStore, func(c *fiber.Ctx) (goth.User, error) {
			return gothfiber.CompleteUserAuth(c)
		}, cfg.ReturnURL),
		Queue:           controllers.NewQueueController(queue),
		BeginAuth:       gothfiber.BeginAuthHandler,
		MetricsUser:     env.GetEnv("METRICS_USER", ""),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
	})

	return &Application{App: app, Manager: manager, cache: client}
}
