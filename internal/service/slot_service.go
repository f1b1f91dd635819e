package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"go.uber.org/zap"
)

// SlotService раскладывает окна доступности на бронируемые слоты
// фиксированной длины и отфильтровывает уже занятые.
type SlotService struct {
	availability *AvailabilityService
	bookings     BookingStore
	logger       *zap.Logger
}

func NewSlotService(availability *AvailabilityService, bookings BookingStore, logger *zap.Logger) *SlotService {
	return &SlotService{
		availability: availability,
		bookings:     bookings,
		logger:       logger,
	}
}

// ComputeSlots ленивая последовательность слотов длины slotLength,
// замощающих окно от его начала. Хвост короче слота отбрасывается.
// Последовательность конечна и перезапускаема: повторный range идёт с начала.
func ComputeSlots(window model.Interval, slotLength int) iter.Seq[model.Interval] {
	return func(yield func(model.Interval) bool) {
		if slotLength <= 0 {
			return
		}
		for start := window.Start; start+slotLength <= window.End; start += slotLength {
			if !yield(model.Interval{Start: start, End: start + slotLength}) {
				return
			}
		}
	}
}

// FreeSlots возвращает свободные слоты запрошенного окна на дату.
// Окно должно целиком лежать внутри зарегистрированной доступности
// по активной дисциплине; занятым считается слот, пересекающий любую
// активную запись преподавателя на эту дату.
func (s *SlotService) FreeSlots(
	ctx context.Context,
	teacherID int64,
	subject string,
	date time.Time,
	window model.ClockRange,
) ([]model.Slot, error) {
	requested, err := model.NewInterval(window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, err)
	}

	blocks, err := s.availability.activeBlocksForWeekday(ctx, teacherID, date.Weekday())
	if err != nil {
		return nil, err
	}

	var matched *model.AvailabilityBlock
	for _, block := range blocks {
		if block.Subject == subject && block.Interval.Contains(requested) {
			matched = block
			break
		}
	}
	if matched == nil {
		return nil, fmt.Errorf("%w: %s on %s for %q", ErrOutsideAvailability, requested, date.Weekday(), subject)
	}

	taken, err := s.bookings.ListActiveByTeacherDate(ctx, teacherID, model.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}

	var free []model.Slot
	for candidate := range ComputeSlots(requested, model.SlotLengthMinutes) {
		occupied := false
		for _, booking := range taken {
			if candidate.Overlaps(booking.Interval) {
				occupied = true
				break
			}
		}
		if !occupied {
			free = append(free, model.Slot{
				TeacherID: teacherID,
				Subject:   subject,
				Date:      model.DateOnly(date),
				Interval:  candidate,
			})
		}
	}

	s.logger.Debug("Computed free slots",
		zap.Int64("teacher_id", teacherID),
		zap.String("subject", subject),
		zap.Time("date", model.DateOnly(date)),
		zap.String("window", requested.String()),
		zap.Int("free", len(free)),
		zap.Int("taken", len(taken)),
	)

	return free, nil
}
