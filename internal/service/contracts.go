package service

import (
	"context"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/google/uuid"
)

// Контракты хранилища, которые потребляют сервисы. Реализуются
// репозиториями на pgx и in-memory фейками в тестах.

type AvailabilityStore interface {
	ReplaceIdentity(ctx context.Context, teacherID int64, subject string, weekday time.Weekday, intervals []model.Interval, groupID uuid.UUID) ([]*model.AvailabilityBlock, error)
	ReplaceForSubject(ctx context.Context, teacherID int64, subject string, byWeekday map[time.Weekday][]model.Interval, groupID uuid.UUID) ([]*model.AvailabilityBlock, error)
	DeleteIdentity(ctx context.Context, teacherID int64, subject string, weekday time.Weekday) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.AvailabilityBlock, error)
	ListByTeacher(ctx context.Context, teacherID int64, subject *string) ([]*model.AvailabilityBlock, error)
	ListByTeacherWeekday(ctx context.Context, teacherID int64, weekday time.Weekday) ([]*model.AvailabilityBlock, error)
}

type BookingStore interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	ListActiveByTeacherDate(ctx context.Context, teacherID int64, date time.Time) ([]*model.Booking, error)
	ListActiveByStudentDate(ctx context.Context, studentID int64, date time.Time) ([]*model.Booking, error)
	ListActiveByTeacherRange(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.Booking, error)
	ListByParticipant(ctx context.Context, role model.Role, participantID int64, includeTerminal bool) ([]*model.Booking, error)
	ListPendingByTeacher(ctx context.Context, teacherID int64) ([]*model.Booking, error)
	UpdateStatusFrom(ctx context.Context, id int64, to model.BookingStatus, from ...model.BookingStatus) (bool, error)
	Reject(ctx context.Context, id int64, reason *string) (bool, error)
	Cancel(ctx context.Context, id int64, by model.Role, reason string) (bool, error)
	Reschedule(ctx context.Context, booking *model.Booking) (bool, error)
	Finalize(ctx context.Context, id int64, attended bool, observations *string) (bool, error)
	Expire(ctx context.Context, id int64) (bool, error)
	ListActiveEndedBefore(ctx context.Context, date time.Time, minute int) ([]*model.Booking, error)
	ListConfirmedForReminder(ctx context.Context, tier model.ReminderTier, from, to time.Time) ([]*model.Booking, error)
	MarkReminderSent(ctx context.Context, id int64, tier model.ReminderTier) (bool, error)
	ClearReminderFlagsBefore(ctx context.Context, date time.Time) (int64, error)
}

// SubjectDirectory список активных дисциплин преподавателя из внешнего каталога
type SubjectDirectory interface {
	ActiveSubjects(ctx context.Context, teacherID int64) ([]string, error)
}

// ContactDirectory контакты участников для адресации уведомлений
type ContactDirectory interface {
	GetContact(ctx context.Context, id int64) (*model.Contact, error)
}
