package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/esfot/tutoria-scheduler/internal/app"
	"github.com/esfot/tutoria-scheduler/internal/config"
	"github.com/esfot/tutoria-scheduler/internal/notify"
	"github.com/esfot/tutoria-scheduler/internal/repository"
	"github.com/esfot/tutoria-scheduler/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting tutoring scheduler",
		zap.String("environment", cfg.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Connected to database")

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	availabilityRepo := repository.NewAvailabilityRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	subjectRepo := repository.NewSubjectRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	notifier := notify.NewLogNotifier(logger)

	availabilityService := service.NewAvailabilityService(availabilityRepo, subjectRepo, logger)
	bookingService := service.NewBookingService(bookingRepo, availabilityService, userRepo, notifier, logger)
	reminderService := service.NewReminderService(bookingRepo, userRepo, notifier, logger)

	scheduler := app.NewScheduler(
		bookingService,
		reminderService,
		cfg.SweepInterval,
		cfg.ReminderInterval,
		cfg.CleanupInterval,
		logger,
	)
	scheduler.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	scheduler.Stop()
	cancel()
	logger.Info("Scheduler stopped")
}
