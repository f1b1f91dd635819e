package app

import (
	"context"
	"sync"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/esfot/tutoria-scheduler/internal/service"
	"go.uber.org/zap"
)

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	bookingService  *service.BookingService
	reminderService *service.ReminderService
	logger          *zap.Logger
	stopChan        chan struct{}

	sweepInterval    time.Duration
	reminderInterval time.Duration
	cleanupInterval  time.Duration

	// Пропускаем тик, если предыдущий проход той же задачи ещё идёт
	expirationBusy sync.Mutex
	reminderBusy   sync.Mutex
	cleanupBusy    sync.Mutex
}

// NewScheduler создаёт новый планировщик
func NewScheduler(
	bookingService *service.BookingService,
	reminderService *service.ReminderService,
	sweepInterval, reminderInterval, cleanupInterval time.Duration,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		bookingService:   bookingService,
		reminderService:  reminderService,
		logger:           logger,
		stopChan:         make(chan struct{}),
		sweepInterval:    sweepInterval,
		reminderInterval: reminderInterval,
		cleanupInterval:  cleanupInterval,
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler")

	go s.runTask(ctx, "expiration sweep", s.sweepInterval, s.runExpirationSweep)
	go s.runTask(ctx, "reminder sweep", s.reminderInterval, s.runReminderSweep)
	go s.runTask(ctx, "reminder cleanup", s.cleanupInterval, s.runReminderCleanup)
}

// Stop останавливает фоновые задачи
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
}

// runTask общий цикл фоновой задачи: запуск сразу при старте, далее по тикеру
func (s *Scheduler) runTask(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-s.stopChan:
			s.logger.Info("Background task stopped", zap.String("task", name))
			return
		case <-ctx.Done():
			s.logger.Info("Background task cancelled", zap.String("task", name))
			return
		}
	}
}

// runExpirationSweep просрочивает активные записи с прошедшим временем занятия
func (s *Scheduler) runExpirationSweep(ctx context.Context) {
	if !s.expirationBusy.TryLock() {
		s.logger.Warn("Previous expiration sweep still running, skipping tick")
		return
	}
	defer s.expirationBusy.Unlock()

	if _, err := s.bookingService.RunExpirationSweep(ctx); err != nil {
		s.logger.Error("Expiration sweep failed", zap.Error(err))
	}
}

// runReminderSweep прогоняет оба яруса напоминаний
func (s *Scheduler) runReminderSweep(ctx context.Context) {
	if !s.reminderBusy.TryLock() {
		s.logger.Warn("Previous reminder sweep still running, skipping tick")
		return
	}
	defer s.reminderBusy.Unlock()

	for _, tier := range []model.ReminderTier{model.ReminderTier24h, model.ReminderTier3h} {
		if _, err := s.reminderService.RunReminderSweep(ctx, tier); err != nil {
			s.logger.Error("Reminder sweep failed",
				zap.Error(err),
				zap.Int("tier_hours", int(tier)),
			)
		}
	}
}

// runReminderCleanup сбрасывает флаги напоминаний у давно прошедших записей
func (s *Scheduler) runReminderCleanup(ctx context.Context) {
	if !s.cleanupBusy.TryLock() {
		s.logger.Warn("Previous reminder cleanup still running, skipping tick")
		return
	}
	defer s.cleanupBusy.Unlock()

	if _, err := s.reminderService.RunReminderCleanup(ctx); err != nil {
		s.logger.Error("Reminder cleanup failed", zap.Error(err))
	}
}
