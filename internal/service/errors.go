package service

import "errors"

// Ошибки ядра. Валидационные и конфликтные возвращаются вызывающему как
// отклонение запроса, ошибки состояний никогда не ретраятся.
var (
	// Валидация запроса
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrInvalidDuration  = errors.New("invalid booking duration")
	ErrPastOrTooSoon    = errors.New("booking time is in the past or too soon")
	ErrSubjectNotActive = errors.New("subject is not active for this teacher")

	// Конфликты расписания
	ErrCrossSubjectConflict = errors.New("interval overlaps another active subject")
	ErrOutsideAvailability  = errors.New("interval is outside teacher availability")
	ErrTeacherSlotTaken     = errors.New("teacher slot is already taken")
	ErrStudentDoubleBooked  = errors.New("student already has a booking in this interval")

	// Машина состояний
	ErrIllegalTransition    = errors.New("illegal booking state transition")
	ErrAlreadyExpired       = errors.New("booking already expired")
	ErrAttendanceAlreadySet = errors.New("attendance already recorded")

	ErrBookingNotFound = errors.New("booking not found")
	ErrBlockNotFound   = errors.New("availability block not found")
	ErrNotAllowed      = errors.New("no permission to perform this operation")
)
