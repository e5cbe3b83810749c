package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/it-helpdesk/internal/api/http"
	"github.com/spec-kit/it-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/it-helpdesk/internal/auth"
	"github.com/spec-kit/it-helpdesk/internal/config"
	"github.com/spec-kit/it-helpdesk/internal/events"
	"github.com/spec-kit/it-helpdesk/internal/functions"
	"github.com/spec-kit/it-helpdesk/internal/observability"
	"github.com/spec-kit/it-helpdesk/internal/persistence"
	"github.com/spec-kit/it-helpdesk/internal/repository"
	"github.com/spec-kit/it-helpdesk/internal/service"
	"github.com/spec-kit/it-helpdesk/internal/storage"
	"github.com/spec-kit/it-helpdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	pingers := map[string]handlers.Pinger{}

	var repos repository.Set
	if cfg.Postgres.DSN == "" {
		logger.Warn("POSTGRES_DSN not set, using in-memory repositories")
		repos = repository.NewMemory(nil).Set()
	} else {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		repos = repository.NewPostgresSet(pg.PoolHandle())
		pingers["postgres"] = pg
	}

	var feed events.Feed
	switch cfg.Realtime.Backend {
	case "redis":
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		feed = events.NewRedisFeed(redis.Client, logger)
		pingers["redis"] = redis
	default:
		memFeed := events.NewMemoryFeed()
		defer memFeed.Close() //nolint:errcheck
		feed = memFeed
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to init attachment storage", zap.Error(err))
	}

	mailer := newMailer(cfg, logger)
	var local *functions.Local
	var invoker functions.Invoker
	if cfg.Functions.BaseURL != "" {
		invoker = functions.NewClient(cfg.Functions.BaseURL, cfg.Functions.APIKey)
	} else {
		local = functions.NewLocal(mailer, newProvisioner(cfg, repos), logger)
		invoker = local
	}

	notifier := worker.NewNotificationWorker(invoker, logger, metrics, worker.Options{
		Workers:   cfg.Notification.Workers,
		QueueSize: cfg.Notification.QueueSize,
	})
	notifier.Start(ctx)
	go drainReports(notifier.Reports(), logger)

	notifications := service.NewNotificationService(notifier, logger, metrics, cfg.Notification)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     repos.Tickets,
		AttachmentRepo: repos.Attachments,
		UserRepo:       repos.Users,
		HistoryRepo:    repos.History,
		Store:          store,
		Feed:           feed,
		Notifications:  notifications,
		Logger:         logger,
		Metrics:        metrics,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})
	userService := service.NewUserService(service.UserDependencies{
		UserRepo: repos.Users,
		Creator:  invoker,
		Logger:   logger,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		AccountRepo:       repos.Accounts,
		PasswordResetRepo: repos.PasswordResets,
		CodeMailer:        mailer,
		Logger:            logger,
	})
	if err := authService.BootstrapAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin account", zap.Error(err))
	}
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.Accounts)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Storage.MaxUploadBytes) * 6,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	shutdown := make(chan struct{})
	routes := httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pingers, metrics),
		Auth:           handlers.NewAuthHandler(authService, cfg.Auth.SecureCookies),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Admin:          handlers.NewAdminHandler(ticketService, userService),
		Realtime:       handlers.NewRealtimeHandler(feed, logger, metrics, shutdown),
		AuthMiddleware: authMiddleware,
		RecoveryLimit: httptransport.RateLimit{
			Max:    cfg.Auth.RecoveryMaxRequests,
			Window: cfg.Auth.RecoveryWindow(),
		},
	}
	if local != nil && cfg.Functions.APIKey != "" {
		routes.Functions = handlers.NewFunctionsHandler(local, cfg.Functions.APIKey)
	}
	httptransport.RegisterRoutes(app, routes)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	close(shutdown)
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	notifier.Stop()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.Storage.Backend == "s3" {
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	}
	return storage.NewMemoryStore(cfg.Storage.Bucket, cfg.Storage.PublicBaseURL), nil
}

type emailer interface {
	functions.Mailer
	functions.CodeMailer
}

func newMailer(cfg *config.Config, logger *zap.Logger) emailer {
	if cfg.Notification.SendGridAPIKey == "" {
		return functions.NewLogMailer(logger)
	}
	return functions.NewSendGridMailer(cfg.Notification.SendGridAPIKey, cfg.Notification.EmailFrom)
}

func newProvisioner(cfg *config.Config, repos repository.Set) functions.Provisioner {
	if cfg.Functions.IdentityAdminURL != "" {
		return functions.NewAdminAPIProvisioner(cfg.Functions.IdentityAdminURL, cfg.Functions.IdentityServiceKey)
	}
	return functions.NewAccountProvisioner(repos.Accounts, cfg.Auth.BcryptCost)
}

func drainReports(reports <-chan worker.Report, logger *zap.Logger) {
	for report := range reports {
		logger.Info("notification undelivered",
			zap.String("ticket_id", report.TicketID),
			zap.String("type", string(report.Kind)),
			zap.Time("at", report.At),
			zap.Error(report.Err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
