package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/queue-booking-service/internal/api/http"
	"github.com/spec-kit/queue-booking-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-booking-service/internal/auth"
	"github.com/spec-kit/queue-booking-service/internal/config"
	"github.com/spec-kit/queue-booking-service/internal/events"
	"github.com/spec-kit/queue-booking-service/internal/observability"
	"github.com/spec-kit/queue-booking-service/internal/persistence"
	"github.com/spec-kit/queue-booking-service/internal/realtime"
	"github.com/spec-kit/queue-booking-service/internal/repository"
	"github.com/spec-kit/queue-booking-service/internal/service"
	"github.com/spec-kit/queue-booking-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

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

	shutdownTracing := observability.SetupTracing(ctx, cfg.App.Name, cfg.App.Version, cfg.Telemetry, logger)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	bookingRepo := repository.NewBookingRepository(pool)
	trackingRepo := repository.NewTrackingRepository(pool)
	windowRepo := repository.NewWindowRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	location := cfg.App.Location()

	trackingService := service.NewTrackingService(service.TrackingDependencies{
		TrackingRepo: trackingRepo,
		BookingRepo:  bookingRepo,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Location:     location,
	})
	bookingService := service.NewBookingService(service.BookingDependencies{
		BookingRepo: bookingRepo,
		WindowRepo:  windowRepo,
		Tracking:    trackingService,
		Dispatcher:  dispatcher,
		Logger:      logger,
		OpeningHour: cfg.Queue.TomorrowOpeningHour,
	})
	queueService := service.NewQueueService(service.QueueDependencies{
		BookingRepo: bookingRepo,
		WindowRepo:  windowRepo,
		Tracking:    trackingService,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	windowService := service.NewWindowService(service.WindowDependencies{
		WindowRepo: windowRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{UserRepo: userRepo, Logger: logger})
	userService := service.NewUserService(*cfg, service.UserDependencies{UserRepo: userRepo, Logger: logger})

	hub := realtime.NewHub(logger)
	var statusSink realtime.Publisher = redis
	if err := redis.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, broadcasting queue status in-process only", zap.Error(err))
		statusSink = hub
	} else {
		go func() {
			if err := realtime.RunRelay(ctx, redis, cfg.Redis.StatusChannel, hub, logger); err != nil {
				logger.Error("status relay stopped", zap.Error(err))
			}
		}()
	}
	worker.StartStatusBroadcaster(dispatcher, trackingService,
		realtime.NewStatusPublisher(statusSink, cfg.Redis.StatusChannel), logger)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:           handlers.NewAuthHandler(authService, userService),
		Users:          handlers.NewUsersHandler(userService),
		Bookings:       handlers.NewBookingsHandler(bookingService, queueService, trackingService),
		Queue:          handlers.NewQueueHandler(trackingService, hub, logger),
		Windows:        handlers.NewWindowsHandler(windowService),
		AuthMiddleware: auth.NewAuthMiddleware(authService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("queue booking service started",
		zap.String("addr", cfg.App.Addr()),
		zap.String("timezone", location.String()))

	waitForShutdown(logger)
	cancel()

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
