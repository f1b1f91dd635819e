package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AvailabilityService управляет окнами доступности преподавателей:
// валидация интервалов, защита от пересечений между дисциплинами,
// выборки для слотов и проверок конфликтов.
type AvailabilityService struct {
	blocks   AvailabilityStore
	subjects SubjectDirectory
	logger   *zap.Logger
}

func NewAvailabilityService(blocks AvailabilityStore, subjects SubjectDirectory, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		blocks:   blocks,
		subjects: subjects,
		logger:   logger,
	}
}

// parseRanges разбирает интервалы из граничного формата "HH:MM"
func parseRanges(ranges []model.ClockRange) ([]model.Interval, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: at least one interval is required", ErrInvalidInterval)
	}

	intervals := make([]model.Interval, 0, len(ranges))
	for _, r := range ranges {
		interval, err := model.NewInterval(r.Start, r.End)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, err)
		}
		intervals = append(intervals, interval)
	}
	return intervals, nil
}

// checkNoOverlap проверяет попарные пересечения интервалов одного запроса:
// сортировка по началу и проход по соседям
func checkNoOverlap(intervals []model.Interval) error {
	sorted := make([]model.Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i := 0; i < len(sorted)-1; i++ {
		if sorted[i].End > sorted[i+1].Start {
			return fmt.Errorf("%w: %s overlaps %s", ErrInvalidInterval, sorted[i], sorted[i+1])
		}
	}
	return nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// checkCrossSubject проверяет пересечения новых интервалов с интервалами
// других активных дисциплин того же преподавателя в тот же день недели.
// Окна неактивных дисциплин инертны и в проверке не участвуют.
func (s *AvailabilityService) checkCrossSubject(
	ctx context.Context,
	teacherID int64,
	subject string,
	weekday time.Weekday,
	intervals []model.Interval,
	active map[string]struct{},
) error {
	existing, err := s.blocks.ListByTeacherWeekday(ctx, teacherID, weekday)
	if err != nil {
		return fmt.Errorf("list existing blocks: %w", err)
	}

	for _, block := range existing {
		if block.Subject == subject {
			continue
		}
		if _, ok := active[block.Subject]; !ok {
			continue
		}
		for _, interval := range intervals {
			if interval.Overlaps(block.Interval) {
				return fmt.Errorf("%w: %s overlaps %s of %q on %s",
					ErrCrossSubjectConflict, interval, block.Interval, block.Subject, weekday)
			}
		}
	}
	return nil
}

// UpsertBlock заменяет интервалы идентичности (teacher, subject, weekday)
// на переданный набор, предварительно провалидировав его
func (s *AvailabilityService) UpsertBlock(
	ctx context.Context,
	teacherID int64,
	subject string,
	weekday time.Weekday,
	ranges []model.ClockRange,
) ([]*model.AvailabilityBlock, error) {
	if !model.IsTeachingDay(weekday) {
		return nil, fmt.Errorf("%w: %s is not a teaching day", ErrInvalidInterval, weekday)
	}

	intervals, err := parseRanges(ranges)
	if err != nil {
		return nil, err
	}
	if err := checkNoOverlap(intervals); err != nil {
		return nil, err
	}

	activeNames, err := s.subjects.ActiveSubjects(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get active subjects: %w", err)
	}
	active := toSet(activeNames)
	if _, ok := active[subject]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrSubjectNotActive, subject)
	}

	if err := s.checkCrossSubject(ctx, teacherID, subject, weekday, intervals, active); err != nil {
		return nil, err
	}

	blocks, err := s.blocks.ReplaceIdentity(ctx, teacherID, subject, weekday, intervals, uuid.New())
	if err != nil {
		return nil, fmt.Errorf("replace availability identity: %w", err)
	}

	s.logger.Info("Availability updated",
		zap.Int64("teacher_id", teacherID),
		zap.String("subject", subject),
		zap.String("weekday", weekday.String()),
		zap.Int("intervals", len(blocks)),
	)

	return blocks, nil
}

// ReplaceAllForSubject атомарно перезаписывает всю неделю дисциплины:
// обе валидации выполняются для каждого дня до первой записи в хранилище
func (s *AvailabilityService) ReplaceAllForSubject(
	ctx context.Context,
	teacherID int64,
	subject string,
	rangesByWeekday map[time.Weekday][]model.ClockRange,
) ([]*model.AvailabilityBlock, error) {
	if len(rangesByWeekday) == 0 {
		return nil, fmt.Errorf("%w: at least one weekday is required", ErrInvalidInterval)
	}

	activeNames, err := s.subjects.ActiveSubjects(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get active subjects: %w", err)
	}
	active := toSet(activeNames)
	if _, ok := active[subject]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrSubjectNotActive, subject)
	}

	byWeekday := make(map[time.Weekday][]model.Interval, len(rangesByWeekday))
	for weekday, ranges := range rangesByWeekday {
		if !model.IsTeachingDay(weekday) {
			return nil, fmt.Errorf("%w: %s is not a teaching day", ErrInvalidInterval, weekday)
		}

		intervals, err := parseRanges(ranges)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", weekday, err)
		}
		if err := checkNoOverlap(intervals); err != nil {
			return nil, fmt.Errorf("%s: %w", weekday, err)
		}
		if err := s.checkCrossSubject(ctx, teacherID, subject, weekday, intervals, active); err != nil {
			return nil, err
		}

		byWeekday[weekday] = intervals
	}

	blocks, err := s.blocks.ReplaceForSubject(ctx, teacherID, subject, byWeekday, uuid.New())
	if err != nil {
		return nil, fmt.Errorf("replace availability for subject: %w", err)
	}

	s.logger.Info("Availability rewritten for subject",
		zap.Int64("teacher_id", teacherID),
		zap.String("subject", subject),
		zap.Int("weekdays", len(byWeekday)),
		zap.Int("intervals", len(blocks)),
	)

	return blocks, nil
}

// DeleteBlock удаляет интервалы идентичности. Удаление отсутствующей
// строки считается идемпотентным no-op.
func (s *AvailabilityService) DeleteBlock(ctx context.Context, teacherID int64, subject string, weekday time.Weekday) error {
	deleted, err := s.blocks.DeleteIdentity(ctx, teacherID, subject, weekday)
	if err != nil {
		return fmt.Errorf("delete availability identity: %w", err)
	}

	s.logger.Info("Availability deleted",
		zap.Int64("teacher_id", teacherID),
		zap.String("subject", subject),
		zap.String("weekday", weekday.String()),
		zap.Int64("rows", deleted),
	)

	return nil
}

// GetBlock возвращает строку доступности по ID
func (s *AvailabilityService) GetBlock(ctx context.Context, id int64) (*model.AvailabilityBlock, error) {
	block, err := s.blocks.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get availability block: %w", err)
	}
	if block == nil {
		return nil, ErrBlockNotFound
	}
	return block, nil
}

// ListBlocks возвращает все окна преподавателя, опционально по дисциплине
func (s *AvailabilityService) ListBlocks(ctx context.Context, teacherID int64, subject *string) ([]*model.AvailabilityBlock, error) {
	return s.blocks.ListByTeacher(ctx, teacherID, subject)
}

// ListActiveBlocks возвращает только окна по активным дисциплинам
func (s *AvailabilityService) ListActiveBlocks(ctx context.Context, teacherID int64) ([]*model.AvailabilityBlock, error) {
	activeNames, err := s.subjects.ActiveSubjects(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get active subjects: %w", err)
	}
	active := toSet(activeNames)

	all, err := s.blocks.ListByTeacher(ctx, teacherID, nil)
	if err != nil {
		return nil, err
	}

	blocks := make([]*model.AvailabilityBlock, 0, len(all))
	for _, block := range all {
		if _, ok := active[block.Subject]; ok {
			blocks = append(blocks, block)
		}
	}
	return blocks, nil
}

// activeBlocksForWeekday окна активных дисциплин на день недели,
// общая выборка для валидатора конфликтов и расчёта слотов
func (s *AvailabilityService) activeBlocksForWeekday(ctx context.Context, teacherID int64, weekday time.Weekday) ([]*model.AvailabilityBlock, error) {
	activeNames, err := s.subjects.ActiveSubjects(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get active subjects: %w", err)
	}
	active := toSet(activeNames)

	all, err := s.blocks.ListByTeacherWeekday(ctx, teacherID, weekday)
	if err != nil {
		return nil, err
	}

	blocks := make([]*model.AvailabilityBlock, 0, len(all))
	for _, block := range all {
		if _, ok := active[block.Subject]; ok {
			blocks = append(blocks, block)
		}
	}
	return blocks, nil
}
