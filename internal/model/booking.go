package model

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Создана студентом, ждёт решения преподавателя
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждена преподавателем
	BookingStatusRejected  BookingStatus = "rejected"  // Отклонена преподавателем
	BookingStatusCancelled BookingStatus = "cancelled" // Отменена одной из сторон
	BookingStatusFinalized BookingStatus = "finalized" // Проведена, посещаемость зафиксирована
	BookingStatusExpired   BookingStatus = "expired"   // Просрочена фоновой задачей
)

// ReminderTier ярус напоминания: за сколько часов до начала оно отправляется
type ReminderTier int

const (
	ReminderTier24h ReminderTier = 24
	ReminderTier3h  ReminderTier = 3
)

type Booking struct {
	ID        int64         `json:"id"`
	StudentID int64         `json:"student_id"`
	TeacherID int64         `json:"teacher_id"`
	Subject   string        `json:"subject"`            // дисциплина, по которой запись прошла валидацию
	BlockID   *int64        `json:"block_id,omitempty"` // окно доступности, внутри которого лежит интервал
	Date      time.Time     `json:"date"`               // календарная дата занятия
	Interval  Interval      `json:"interval"`
	Status    BookingStatus `json:"status"`

	RejectionReason    *string `json:"rejection_reason,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`
	CancelledBy        *Role   `json:"cancelled_by,omitempty"`

	// Аудит переноса: кто, когда и почему перенёс запись в последний раз
	RescheduledBy    *Role      `json:"rescheduled_by,omitempty"`
	RescheduledAt    *time.Time `json:"rescheduled_at,omitempty"`
	RescheduleReason *string    `json:"reschedule_reason,omitempty"`

	Attended     *bool   `json:"attended"` // nil, пока посещаемость не зафиксирована
	Observations *string `json:"observations,omitempty"`

	Reminder24hSent bool `json:"reminder_24h_sent"`
	Reminder3hSent  bool `json:"reminder_3h_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive запись ещё занимает слот (не достигла терминального состояния)
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// IsTerminal из терминального состояния переходов нет
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case BookingStatusRejected, BookingStatusCancelled, BookingStatusFinalized, BookingStatusExpired:
		return true
	}
	return false
}

// StartAt момент начала занятия
func (b *Booking) StartAt() time.Time {
	return CombineDateMinute(b.Date, b.Interval.Start)
}

// EndAt момент окончания занятия
func (b *Booking) EndAt() time.Time {
	return CombineDateMinute(b.Date, b.Interval.End)
}

// ReminderSent возвращает флаг яруса напоминания
func (b *Booking) ReminderSent(tier ReminderTier) bool {
	if tier == ReminderTier24h {
		return b.Reminder24hSent
	}
	return b.Reminder3hSent
}
