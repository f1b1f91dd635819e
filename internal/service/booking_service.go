package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/esfot/tutoria-scheduler/internal/notify"
	"github.com/esfot/tutoria-scheduler/internal/repository"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Минимальное время до начала занятия, после которого отмена и перенос
// уже не принимаются. Создание новой записи ограничено только "не в прошлом".
const (
	CancelLeadTime     = 2 * time.Hour
	RescheduleLeadTime = 2 * time.Hour
)

// retryBackoff пауза перед единственным повтором на гоночном пути создания
const retryBackoff = 25 * time.Millisecond

// BookingService машина состояний бронирований и валидатор конфликтов.
// Все мутации идут через охраняемые переходы хранилища; пересечения
// закрыты ограничениями базы, сервис повторяет валидацию один раз
// при проигрыше гонки.
type BookingService struct {
	bookings     BookingStore
	availability *AvailabilityService
	contacts     ContactDirectory
	notifier     notify.Notifier
	logger       *zap.Logger
	now          func() time.Time
}

func NewBookingService(
	bookings BookingStore,
	availability *AvailabilityService,
	contacts ContactDirectory,
	notifier notify.Notifier,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		bookings:     bookings,
		availability: availability,
		contacts:     contacts,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// validate прогоняет запрошенный интервал через все проверки конфликтов.
// Только чтение; возвращает окно доступности, внутри которого лежит интервал.
// excludeBookingID исключает переносимую запись из проверок пересечений.
func (s *BookingService) validate(
	ctx context.Context,
	teacherID, studentID int64,
	date time.Time,
	interval model.Interval,
	leadTime time.Duration,
	excludeBookingID int64,
) (*model.AvailabilityBlock, error) {
	if d := interval.Duration(); d <= 0 || d > model.SlotLengthMinutes {
		return nil, fmt.Errorf("%w: %d minutes, limit is %d", ErrInvalidDuration, interval.Duration(), model.SlotLengthMinutes)
	}

	startAt := model.CombineDateMinute(date, interval.Start)
	if startAt.Before(s.now().Add(leadTime)) {
		return nil, fmt.Errorf("%w: starts at %s", ErrPastOrTooSoon, startAt.Format("2006-01-02 15:04"))
	}

	blocks, err := s.availability.activeBlocksForWeekday(ctx, teacherID, date.Weekday())
	if err != nil {
		return nil, err
	}

	var matched *model.AvailabilityBlock
	for _, block := range blocks {
		if block.Interval.Contains(interval) {
			matched = block
			break
		}
	}
	if matched == nil {
		return nil, fmt.Errorf("%w: %s on %s", ErrOutsideAvailability, interval, date.Weekday())
	}

	teacherBookings, err := s.bookings.ListActiveByTeacherDate(ctx, teacherID, model.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list teacher bookings: %w", err)
	}
	for _, other := range teacherBookings {
		if other.ID == excludeBookingID {
			continue
		}
		if interval.Overlaps(other.Interval) {
			return nil, fmt.Errorf("%w: conflicts with %s", ErrTeacherSlotTaken, other.Interval)
		}
	}

	studentBookings, err := s.bookings.ListActiveByStudentDate(ctx, studentID, model.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list student bookings: %w", err)
	}
	for _, other := range studentBookings {
		if other.ID == excludeBookingID {
			continue
		}
		if interval.Overlaps(other.Interval) {
			return nil, fmt.Errorf("%w: conflicts with %s", ErrStudentDoubleBooked, other.Interval)
		}
	}

	return matched, nil
}

// mapStoreConflict переводит ошибку пересечения из хранилища в таксономию ядра
func mapStoreConflict(err error) error {
	switch {
	case errors.Is(err, repository.ErrTeacherOverlap):
		return fmt.Errorf("%w: interval already taken", ErrTeacherSlotTaken)
	case errors.Is(err, repository.ErrStudentOverlap):
		return fmt.Errorf("%w: interval already taken", ErrStudentDoubleBooked)
	}
	return err
}

func isStoreConflict(err error) bool {
	return errors.Is(err, repository.ErrTeacherOverlap) || errors.Is(err, repository.ErrStudentOverlap)
}

// Create создаёт запись от имени студента и помещает её в pending.
// Проигрыш гонки за интервал повторяется один раз: валидация перезапускается
// против свежего состояния, второй проигрыш возвращается как конфликт.
func (s *BookingService) Create(
	ctx context.Context,
	actor model.Actor,
	teacherID int64,
	date time.Time,
	window model.ClockRange,
) (*model.Booking, error) {
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students create bookings", ErrNotAllowed)
	}

	interval, err := model.NewInterval(window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, err)
	}

	var booking *model.Booking
	backoff := retry.WithMaxRetries(1, retry.NewConstant(retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		block, err := s.validate(ctx, teacherID, actor.ID, date, interval, 0, 0)
		if err != nil {
			return err
		}

		booking = &model.Booking{
			StudentID: actor.ID,
			TeacherID: teacherID,
			Subject:   block.Subject,
			BlockID:   &block.ID,
			Date:      model.DateOnly(date),
			Interval:  interval,
			Status:    model.BookingStatusPending,
		}

		if err := s.bookings.Create(ctx, booking); err != nil {
			if isStoreConflict(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreConflict(err)
	}

	s.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("student_id", actor.ID),
		zap.Int64("teacher_id", teacherID),
		zap.String("subject", booking.Subject),
		zap.Time("date", booking.Date),
		zap.String("interval", interval.String()),
	)

	return booking, nil
}

// getOwnedByTeacher загружает запись и проверяет, что actor является её преподавателем
func (s *BookingService) getOwnedByTeacher(ctx context.Context, actor model.Actor, bookingID int64) (*model.Booking, error) {
	if !actor.IsTeacher() {
		return nil, fmt.Errorf("%w: teacher-only operation", ErrNotAllowed)
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if booking.TeacherID != actor.ID {
		return nil, fmt.Errorf("%w: booking belongs to another teacher", ErrNotAllowed)
	}
	return booking, nil
}

// getOwnedByParty загружает запись и проверяет, что actor является её стороной
// (студент или преподаватель)
func (s *BookingService) getOwnedByParty(ctx context.Context, actor model.Actor, bookingID int64) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}

	switch actor.Role {
	case model.RoleStudent:
		if booking.StudentID != actor.ID {
			return nil, fmt.Errorf("%w: booking belongs to another student", ErrNotAllowed)
		}
	case model.RoleTeacher:
		if booking.TeacherID != actor.ID {
			return nil, fmt.Errorf("%w: booking belongs to another teacher", ErrNotAllowed)
		}
	default:
		return nil, fmt.Errorf("%w: role %s", ErrNotAllowed, actor.Role)
	}
	return booking, nil
}

// Accept подтверждает pending запись. Только её преподаватель.
func (s *BookingService) Accept(ctx context.Context, actor model.Actor, bookingID int64) (*model.Booking, error) {
	booking, err := s.getOwnedByTeacher(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != model.BookingStatusPending {
		return nil, fmt.Errorf("%w: %s -> confirmed", ErrIllegalTransition, booking.Status)
	}

	ok, err := s.bookings.UpdateStatusFrom(ctx, bookingID, model.BookingStatusConfirmed, model.BookingStatusPending)
	if err != nil {
		return nil, fmt.Errorf("confirm booking: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking is no longer pending", ErrIllegalTransition)
	}

	booking.Status = model.BookingStatusConfirmed
	s.logger.Info("Booking accepted",
		zap.Int64("booking_id", bookingID),
		zap.Int64("teacher_id", actor.ID),
	)
	return booking, nil
}

// Reject отклоняет pending запись с опциональной причиной. Только её преподаватель.
func (s *BookingService) Reject(ctx context.Context, actor model.Actor, bookingID int64, reason *string) (*model.Booking, error) {
	booking, err := s.getOwnedByTeacher(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != model.BookingStatusPending {
		return nil, fmt.Errorf("%w: %s -> rejected", ErrIllegalTransition, booking.Status)
	}

	ok, err := s.bookings.Reject(ctx, bookingID, reason)
	if err != nil {
		return nil, fmt.Errorf("reject booking: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking is no longer pending", ErrIllegalTransition)
	}

	booking.Status = model.BookingStatusRejected
	booking.RejectionReason = reason
	s.logger.Info("Booking rejected",
		zap.Int64("booking_id", bookingID),
		zap.Int64("teacher_id", actor.ID),
	)
	return booking, nil
}

// Cancel отменяет активную запись. Доступно её студенту и её преподавателю,
// не позже чем за CancelLeadTime до начала занятия.
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, bookingID int64, reason string) (*model.Booking, error) {
	booking, err := s.getOwnedByParty(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsActive() {
		return nil, fmt.Errorf("%w: %s -> cancelled", ErrIllegalTransition, booking.Status)
	}

	if s.now().Add(CancelLeadTime).After(booking.StartAt()) {
		return nil, fmt.Errorf("%w: less than %s before start", ErrPastOrTooSoon, CancelLeadTime)
	}

	ok, err := s.bookings.Cancel(ctx, bookingID, actor.Role, reason)
	if err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking is no longer active", ErrIllegalTransition)
	}

	booking.Status = model.BookingStatusCancelled
	booking.CancelledBy = &actor.Role
	booking.CancellationReason = &reason
	booking.Attended = nil
	booking.Observations = nil

	s.logger.Info("Booking cancelled",
		zap.Int64("booking_id", bookingID),
		zap.Int64("actor_id", actor.ID),
		zap.String("role", string(actor.Role)),
	)
	return booking, nil
}

// Reschedule переносит активную запись на новый интервал. Запись,
// чьё занятие уже закончилось, принудительно просрочивается, и перенос
// отклоняется. Новый интервал проходит полную валидацию (без самой записи),
// состояние возвращается в pending, встречная сторона уведомляется один раз.
func (s *BookingService) Reschedule(
	ctx context.Context,
	actor model.Actor,
	bookingID int64,
	newDate time.Time,
	window model.ClockRange,
	reason *string,
) (*model.Booking, error) {
	booking, err := s.getOwnedByParty(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsActive() {
		return nil, fmt.Errorf("%w: %s -> pending", ErrIllegalTransition, booking.Status)
	}

	if s.now().After(booking.EndAt()) {
		if _, err := s.bookings.Expire(ctx, bookingID); err != nil {
			s.logger.Error("Failed to expire overdue booking on reschedule",
				zap.Error(err),
				zap.Int64("booking_id", bookingID),
			)
		}
		return nil, fmt.Errorf("%w: booking ended at %s", ErrAlreadyExpired, booking.EndAt().Format("2006-01-02 15:04"))
	}

	interval, err := model.NewInterval(window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, err)
	}

	rescheduledAt := s.now()
	updated := *booking

	backoff := retry.WithMaxRetries(1, retry.NewConstant(retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		block, err := s.validate(ctx, booking.TeacherID, booking.StudentID, newDate, interval, RescheduleLeadTime, bookingID)
		if err != nil {
			return err
		}

		updated.Date = model.DateOnly(newDate)
		updated.Interval = interval
		updated.Subject = block.Subject
		updated.BlockID = &block.ID
		updated.Status = model.BookingStatusPending
		updated.RescheduledBy = &actor.Role
		updated.RescheduledAt = &rescheduledAt
		updated.RescheduleReason = reason

		ok, err := s.bookings.Reschedule(ctx, &updated)
		if err != nil {
			if isStoreConflict(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if !ok {
			return fmt.Errorf("%w: booking is no longer active", ErrIllegalTransition)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreConflict(err)
	}

	s.logger.Info("Booking rescheduled",
		zap.Int64("booking_id", bookingID),
		zap.Int64("actor_id", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.Time("new_date", updated.Date),
		zap.String("new_interval", interval.String()),
	)

	s.notifyCounterparty(ctx, &updated, actor)

	return &updated, nil
}

// notifyCounterparty шлёт единственное уведомление встречной стороне переноса.
// Отправка fire-and-forget: ошибка логируется и не влияет на результат.
func (s *BookingService) notifyCounterparty(ctx context.Context, booking *model.Booking, actor model.Actor) {
	recipientID := booking.TeacherID
	if actor.IsTeacher() {
		recipientID = booking.StudentID
	}

	contact, err := s.contacts.GetContact(ctx, recipientID)
	if err != nil || contact == nil {
		s.logger.Warn("Failed to resolve reschedule notification recipient",
			zap.Error(err),
			zap.Int64("recipient_id", recipientID),
			zap.Int64("booking_id", booking.ID),
		)
		return
	}

	data := map[string]string{
		"name":     contact.FullName,
		"subject":  booking.Subject,
		"date":     booking.Date.Format("2006-01-02"),
		"start":    model.FormatClock(booking.Interval.Start),
		"end":      model.FormatClock(booking.Interval.End),
		"moved_by": string(actor.Role),
	}
	if booking.RescheduleReason != nil {
		data["reason"] = *booking.RescheduleReason
	}

	if err := s.notifier.Send(ctx, contact.Email, notify.TemplateBookingRescheduled, data); err != nil {
		s.logger.Warn("Failed to send reschedule notification",
			zap.Error(err),
			zap.String("to", contact.Email),
			zap.Int64("booking_id", booking.ID),
		)
	}
}

// Finalize фиксирует посещаемость проведённого занятия. Только преподаватель
// записи, только из confirmed, только когда дата занятия уже наступила,
// и только один раз.
func (s *BookingService) Finalize(ctx context.Context, actor model.Actor, bookingID int64, attended bool, observations *string) (*model.Booking, error) {
	booking, err := s.getOwnedByTeacher(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Attended != nil {
		return nil, ErrAttendanceAlreadySet
	}
	if booking.Status != model.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: %s -> finalized", ErrIllegalTransition, booking.Status)
	}
	if model.DateOnly(booking.Date).After(model.DateOnly(s.now())) {
		return nil, fmt.Errorf("%w: booking has not been held yet", ErrIllegalTransition)
	}

	ok, err := s.bookings.Finalize(ctx, bookingID, attended, observations)
	if err != nil {
		return nil, fmt.Errorf("finalize booking: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking is no longer confirmed", ErrIllegalTransition)
	}

	booking.Status = model.BookingStatusFinalized
	booking.Attended = &attended
	booking.Observations = observations

	s.logger.Info("Booking finalized",
		zap.Int64("booking_id", bookingID),
		zap.Int64("teacher_id", actor.ID),
		zap.Bool("attended", attended),
	)
	return booking, nil
}

// Expire системный переход активной записи в expired после конца занятия.
// Идемпотентен: запись в терминальном состоянии не трогается.
func (s *BookingService) Expire(ctx context.Context, bookingID int64) error {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return ErrBookingNotFound
	}
	if booking.IsTerminal() {
		return nil
	}
	if !s.now().After(booking.EndAt()) {
		return fmt.Errorf("%w: booking has not ended yet", ErrIllegalTransition)
	}

	if _, err := s.bookings.Expire(ctx, bookingID); err != nil {
		return fmt.Errorf("expire booking: %w", err)
	}
	return nil
}

// RunExpirationSweep просрочивает все активные записи, чьё занятие
// закончилось раньше текущего момента. Ошибка по одной записи не
// останавливает обход остальных. Уведомления не отправляются.
func (s *BookingService) RunExpirationSweep(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.bookings.ListActiveEndedBefore(ctx, model.DateOnly(now), now.Hour()*60+now.Minute())
	if err != nil {
		return 0, fmt.Errorf("list overdue bookings: %w", err)
	}

	expired := 0
	for _, booking := range due {
		ok, err := s.bookings.Expire(ctx, booking.ID)
		if err != nil {
			s.logger.Error("Failed to expire booking",
				zap.Error(err),
				zap.Int64("booking_id", booking.ID),
			)
			continue
		}
		if ok {
			expired++
		}
	}

	s.logger.Info("Expiration sweep finished",
		zap.Int("scanned", len(due)),
		zap.Int("expired", expired),
	)
	return expired, nil
}

// GetByID возвращает запись по ID
func (s *BookingService) GetByID(ctx context.Context, bookingID int64) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

// ListForActor история записей стороны. Терминальные скрыты,
// если includeTerminal не взведён.
func (s *BookingService) ListForActor(ctx context.Context, actor model.Actor, includeTerminal bool) ([]*model.Booking, error) {
	if actor.Role != model.RoleStudent && actor.Role != model.RoleTeacher {
		return nil, fmt.Errorf("%w: role %s", ErrNotAllowed, actor.Role)
	}
	return s.bookings.ListByParticipant(ctx, actor.Role, actor.ID, includeTerminal)
}

// ListPending заявки, ждущие решения преподавателя
func (s *BookingService) ListPending(ctx context.Context, actor model.Actor) ([]*model.Booking, error) {
	if !actor.IsTeacher() {
		return nil, fmt.Errorf("%w: teacher-only operation", ErrNotAllowed)
	}
	return s.bookings.ListPendingByTeacher(ctx, actor.ID)
}

// BusyIntervals занятые интервалы преподавателя в диапазоне дат,
// для отрисовки сетки расписания внешним слоем
func (s *BookingService) BusyIntervals(ctx context.Context, teacherID int64, from, to time.Time) ([]model.Slot, error) {
	bookings, err := s.bookings.ListActiveByTeacherRange(ctx, teacherID, model.DateOnly(from), model.DateOnly(to))
	if err != nil {
		return nil, err
	}

	busy := make([]model.Slot, 0, len(bookings))
	for _, booking := range bookings {
		busy = append(busy, model.Slot{
			TeacherID: teacherID,
			Subject:   booking.Subject,
			Date:      booking.Date,
			Interval:  booking.Interval,
		})
	}
	return busy, nil
}
