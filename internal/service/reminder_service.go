package service

import (
	"context"
	"fmt"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/esfot/tutoria-scheduler/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReminderWindowSlack полуширина окна яруса: напоминание отправляется,
// когда до начала занятия остаётся tier ± slack
const ReminderWindowSlack = 30 * time.Minute

// ReminderStats итог одного прохода по ярусу
type ReminderStats struct {
	Sent    int // записей, по которым пара уведомлений ушла
	Skipped int // записей, пропущенных из-за ошибок адресации или отправки
}

// ReminderService рассылает напоминания о подтверждённых занятиях.
// Флаг яруса взводится после попытки отправки и никогда не сбрасывается
// для живой записи, поэтому каждый ярус уходит не более одного раза.
type ReminderService struct {
	bookings BookingStore
	contacts ContactDirectory
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewReminderService(bookings BookingStore, contacts ContactDirectory, notifier notify.Notifier, logger *zap.Logger) *ReminderService {
	return &ReminderService{
		bookings: bookings,
		contacts: contacts,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func tierTemplate(tier model.ReminderTier) string {
	if tier == model.ReminderTier24h {
		return notify.TemplateReminder24h
	}
	return notify.TemplateReminder3h
}

// RunReminderSweep находит подтверждённые записи, чьё начало попадает
// в окно яруса, и шлёт напоминание обеим сторонам. Ошибка отправки
// логируется и не прерывает проход: флаг всё равно взводится, чтобы
// сбойная запись не бомбардировала получателей при каждом тике.
func (s *ReminderService) RunReminderSweep(ctx context.Context, tier model.ReminderTier) (ReminderStats, error) {
	var stats ReminderStats

	target := s.now().Add(time.Duration(tier) * time.Hour)
	from := target.Add(-ReminderWindowSlack)
	to := target.Add(ReminderWindowSlack)

	due, err := s.bookings.ListConfirmedForReminder(ctx, tier, from, to)
	if err != nil {
		return stats, fmt.Errorf("list bookings for %dh reminder: %w", tier, err)
	}

	for _, booking := range due {
		// Хранилище фильтрует по дню занятия, точное окно проверяем здесь
		if start := booking.StartAt(); start.Before(from) || start.After(to) {
			continue
		}
		if err := s.sendPair(ctx, booking, tier); err != nil {
			s.logger.Warn("Reminder delivery failed",
				zap.Error(err),
				zap.Int64("booking_id", booking.ID),
				zap.Int("tier_hours", int(tier)),
			)
			stats.Skipped++
		} else {
			stats.Sent++
		}

		ok, err := s.bookings.MarkReminderSent(ctx, booking.ID, tier)
		if err != nil {
			s.logger.Error("Failed to mark reminder flag",
				zap.Error(err),
				zap.Int64("booking_id", booking.ID),
				zap.Int("tier_hours", int(tier)),
			)
			continue
		}
		if !ok {
			// Флаг уже взведён параллельным проходом, дубль не ушёл бы
			s.logger.Debug("Reminder flag already set", zap.Int64("booking_id", booking.ID))
		}
	}

	s.logger.Info("Reminder sweep finished",
		zap.Int("tier_hours", int(tier)),
		zap.Int("sent", stats.Sent),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// sendPair отправляет напоминание студенту и преподавателю записи параллельно
func (s *ReminderService) sendPair(ctx context.Context, booking *model.Booking, tier model.ReminderTier) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range []int64{booking.StudentID, booking.TeacherID} {
		g.Go(func() error {
			return s.sendOne(ctx, booking, tier, id)
		})
	}
	return g.Wait()
}

func (s *ReminderService) sendOne(ctx context.Context, booking *model.Booking, tier model.ReminderTier, recipientID int64) error {
	contact, err := s.contacts.GetContact(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient %d: %w", recipientID, err)
	}
	if contact == nil {
		return fmt.Errorf("recipient %d has no contact record", recipientID)
	}

	data := map[string]string{
		"name":    contact.FullName,
		"subject": booking.Subject,
		"date":    booking.Date.Format("2006-01-02"),
		"start":   model.FormatClock(booking.Interval.Start),
		"end":     model.FormatClock(booking.Interval.End),
	}

	if err := s.notifier.Send(ctx, contact.Email, tierTemplate(tier), data); err != nil {
		return fmt.Errorf("send to %s: %w", contact.Email, err)
	}
	return nil
}

// RunReminderCleanup сбрасывает флаги напоминаний у записей, чья дата
// прошла позавчера и раньше. Вчерашние записи не трогаются, чтобы
// поздний проход не переотправил уже ушедший ярус.
func (s *ReminderService) RunReminderCleanup(ctx context.Context) (int64, error) {
	cutoff := model.DateOnly(s.now()).AddDate(0, 0, -1)
	cleared, err := s.bookings.ClearReminderFlagsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear reminder flags: %w", err)
	}

	s.logger.Info("Reminder flag cleanup finished", zap.Int64("cleared", cleared))
	return cleared, nil
}
