package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/esfot/tutoria-scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Имена ограничений из миграций: по ним exclusion violation переводится
// в ошибку пересечения нужной стороны
const (
	teacherOverlapConstraint = "bookings_teacher_interval_excl"
	studentOverlapConstraint = "bookings_student_interval_excl"
)

const bookingColumns = `id, student_id, teacher_id, subject, block_id, booking_date, start_minute, end_minute,
		status, rejection_reason, cancellation_reason, cancelled_by,
		rescheduled_by, rescheduled_at, reschedule_reason,
		attended, observations, reminder_24h_sent, reminder_3h_sent,
		created_at, updated_at`

type BookingRepository struct {
	*base.Repository
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(pool)}
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var booking model.Booking
	var cancelledBy, rescheduledBy *string
	err := row.Scan(
		&booking.ID,
		&booking.StudentID,
		&booking.TeacherID,
		&booking.Subject,
		&booking.BlockID,
		&booking.Date,
		&booking.Interval.Start,
		&booking.Interval.End,
		&booking.Status,
		&booking.RejectionReason,
		&booking.CancellationReason,
		&cancelledBy,
		&rescheduledBy,
		&booking.RescheduledAt,
		&booking.RescheduleReason,
		&booking.Attended,
		&booking.Observations,
		&booking.Reminder24hSent,
		&booking.Reminder3hSent,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledBy != nil {
		role := model.Role(*cancelledBy)
		booking.CancelledBy = &role
	}
	if rescheduledBy != nil {
		role := model.Role(*rescheduledBy)
		booking.RescheduledBy = &role
	}
	return &booking, nil
}

// mapOverlapError переводит нарушение exclusion-ограничения в ошибку пересечения
func mapOverlapError(err error) error {
	switch base.ConstraintName(err) {
	case teacherOverlapConstraint:
		return ErrTeacherOverlap
	case studentOverlapConstraint:
		return ErrStudentOverlap
	}
	return err
}

// Create создаёт новое бронирование в состоянии pending.
// Пересечение с активной записью преподавателя или студента ловится
// ограничением в базе и возвращается как ErrTeacherOverlap/ErrStudentOverlap.
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (student_id, teacher_id, subject, block_id, booking_date, start_minute, end_minute, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		booking.StudentID,
		booking.TeacherID,
		booking.Subject,
		booking.BlockID,
		booking.Date,
		booking.Interval.Start,
		booking.Interval.End,
		booking.Status,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		if mapped := mapOverlapError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

func (r *BookingRepository) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// ListActiveByTeacherDate получает активные (pending/confirmed) записи преподавателя на дату
func (r *BookingRepository) ListActiveByTeacherDate(ctx context.Context, teacherID int64, date time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE teacher_id = $1 AND booking_date = $2 AND status IN ('pending', 'confirmed')
		ORDER BY start_minute
	`

	bookings, err := r.queryBookings(ctx, query, teacherID, date)
	if err != nil {
		return nil, fmt.Errorf("list active bookings by teacher: %w", err)
	}
	return bookings, nil
}

// ListActiveByStudentDate получает активные записи студента на дату
func (r *BookingRepository) ListActiveByStudentDate(ctx context.Context, studentID int64, date time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE student_id = $1 AND booking_date = $2 AND status IN ('pending', 'confirmed')
		ORDER BY start_minute
	`

	bookings, err := r.queryBookings(ctx, query, studentID, date)
	if err != nil {
		return nil, fmt.Errorf("list active bookings by student: %w", err)
	}
	return bookings, nil
}

// ListActiveByTeacherRange получает активные записи преподавателя в диапазоне дат
func (r *BookingRepository) ListActiveByTeacherRange(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE teacher_id = $1 AND booking_date >= $2 AND booking_date <= $3
		  AND status IN ('pending', 'confirmed')
		ORDER BY booking_date, start_minute
	`

	bookings, err := r.queryBookings(ctx, query, teacherID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list active bookings by teacher range: %w", err)
	}
	return bookings, nil
}

// ListByParticipant получает историю записей студента или преподавателя.
// Терминальные состояния физически не удаляются и по умолчанию скрыты.
func (r *BookingRepository) ListByParticipant(ctx context.Context, role model.Role, participantID int64, includeTerminal bool) ([]*model.Booking, error) {
	column := "student_id"
	if role == model.RoleTeacher {
		column = "teacher_id"
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE ` + column + ` = $1 AND ($2 OR status IN ('pending', 'confirmed'))
		ORDER BY booking_date DESC, start_minute
	`

	bookings, err := r.queryBookings(ctx, query, participantID, includeTerminal)
	if err != nil {
		return nil, fmt.Errorf("list bookings by participant: %w", err)
	}
	return bookings, nil
}

// ListPendingByTeacher получает все pending записи преподавателя
func (r *BookingRepository) ListPendingByTeacher(ctx context.Context, teacherID int64) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE teacher_id = $1 AND status = 'pending'
		ORDER BY booking_date, start_minute
	`

	bookings, err := r.queryBookings(ctx, query, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list pending bookings by teacher: %w", err)
	}
	return bookings, nil
}

// UpdateStatusFrom переводит запись в новое состояние, только если текущее
// состояние входит в from. Возвращает false, если перехода не произошло.
func (r *BookingRepository) UpdateStatusFrom(ctx context.Context, id int64, to model.BookingStatus, from ...model.BookingStatus) (bool, error) {
	states := make([]string, 0, len(from))
	for _, s := range from {
		states = append(states, string(s))
	}

	affected, err := r.ExecAffected(ctx,
		`UPDATE bookings SET status = $1, updated_at = now() WHERE id = $2 AND status = ANY($3)`,
		to, id, states,
	)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}

	return affected > 0, nil
}

// Reject отклоняет pending запись с опциональной причиной
func (r *BookingRepository) Reject(ctx context.Context, id int64, reason *string) (bool, error) {
	affected, err := r.ExecAffected(ctx,
		`UPDATE bookings
		 SET status = 'rejected', rejection_reason = $1, updated_at = now()
		 WHERE id = $2 AND status = 'pending'`,
		reason, id,
	)
	if err != nil {
		return false, fmt.Errorf("reject booking: %w", err)
	}
	return affected > 0, nil
}

// Cancel отменяет активную запись, фиксируя инициатора и причину.
// Посещаемость и наблюдения сбрасываются.
func (r *BookingRepository) Cancel(ctx context.Context, id int64, by model.Role, reason string) (bool, error) {
	affected, err := r.ExecAffected(ctx,
		`UPDATE bookings
		 SET status = 'cancelled', cancelled_by = $1, cancellation_reason = $2,
		     attended = NULL, observations = NULL, updated_at = now()
		 WHERE id = $3 AND status IN ('pending', 'confirmed')`,
		string(by), reason, id,
	)
	if err != nil {
		return false, fmt.Errorf("cancel booking: %w", err)
	}
	return affected > 0, nil
}

// Reschedule переносит активную запись на новый интервал одной командой:
// дата, интервал, сопоставленное окно и аудит меняются атомарно, состояние
// возвращается в pending. Пересечения ловятся ограничениями базы.
func (r *BookingRepository) Reschedule(ctx context.Context, booking *model.Booking) (bool, error) {
	query := `
		UPDATE bookings
		SET booking_date = $1, start_minute = $2, end_minute = $3,
		    subject = $4, block_id = $5, status = 'pending',
		    rescheduled_by = $6, rescheduled_at = $7, reschedule_reason = $8,
		    updated_at = now()
		WHERE id = $9 AND status IN ('pending', 'confirmed')
	`

	var rescheduledBy *string
	if booking.RescheduledBy != nil {
		s := string(*booking.RescheduledBy)
		rescheduledBy = &s
	}

	affected, err := r.ExecAffected(
		ctx, query,
		booking.Date,
		booking.Interval.Start,
		booking.Interval.End,
		booking.Subject,
		booking.BlockID,
		rescheduledBy,
		booking.RescheduledAt,
		booking.RescheduleReason,
		booking.ID,
	)
	if err != nil {
		if mapped := mapOverlapError(err); mapped != err {
			return false, mapped
		}
		return false, fmt.Errorf("reschedule booking: %w", err)
	}

	return affected > 0, nil
}

// Finalize фиксирует посещаемость подтверждённой записи. Повторная фиксация
// не проходит по условию attended IS NULL.
func (r *BookingRepository) Finalize(ctx context.Context, id int64, attended bool, observations *string) (bool, error) {
	affected, err := r.ExecAffected(ctx,
		`UPDATE bookings
		 SET status = 'finalized', attended = $1, observations = $2, updated_at = now()
		 WHERE id = $3 AND status = 'confirmed' AND attended IS NULL`,
		attended, observations, id,
	)
	if err != nil {
		return false, fmt.Errorf("finalize booking: %w", err)
	}
	return affected > 0, nil
}

// Expire переводит активную запись в expired. Идемпотентна: повторный вызов
// не затрагивает строк.
func (r *BookingRepository) Expire(ctx context.Context, id int64) (bool, error) {
	affected, err := r.ExecAffected(ctx,
		`UPDATE bookings SET status = 'expired', updated_at = now()
		 WHERE id = $1 AND status IN ('pending', 'confirmed')`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("expire booking: %w", err)
	}
	return affected > 0, nil
}

// ListActiveEndedBefore получает активные записи, чьё занятие закончилось
// строго раньше переданного момента (дата + минута дня)
func (r *BookingRepository) ListActiveEndedBefore(ctx context.Context, date time.Time, minute int) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status IN ('pending', 'confirmed')
		  AND (booking_date < $1 OR (booking_date = $1 AND end_minute < $2))
		ORDER BY booking_date, start_minute
	`

	bookings, err := r.queryBookings(ctx, query, date, minute)
	if err != nil {
		return nil, fmt.Errorf("list active bookings ended before: %w", err)
	}
	return bookings, nil
}

// ListConfirmedForReminder получает подтверждённые записи без отметки
// о напоминании данного яруса, чей день занятия попадает в диапазон.
// Грубый фильтр по дате; точное окно по минуте начала вырезает сервис.
func (r *BookingRepository) ListConfirmedForReminder(ctx context.Context, tier model.ReminderTier, from, to time.Time) ([]*model.Booking, error) {
	flag := "reminder_3h_sent"
	if tier == model.ReminderTier24h {
		flag = "reminder_24h_sent"
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'confirmed' AND NOT ` + flag + `
		  AND booking_date BETWEEN $1::date AND $2::date
		ORDER BY booking_date, start_minute
	`

	bookings, err := r.queryBookings(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list confirmed bookings for reminder: %w", err)
	}
	return bookings, nil
}

// MarkReminderSent взводит флаг яруса. Флаг монотонный: повторная отметка
// не затрагивает строк, поэтому напоминание яруса уходит не более одного раза.
func (r *BookingRepository) MarkReminderSent(ctx context.Context, id int64, tier model.ReminderTier) (bool, error) {
	flag := "reminder_3h_sent"
	if tier == model.ReminderTier24h {
		flag = "reminder_24h_sent"
	}

	affected, err := r.ExecAffected(ctx,
		`UPDATE bookings SET `+flag+` = TRUE, updated_at = now() WHERE id = $1 AND NOT `+flag,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	return affected > 0, nil
}

// ClearReminderFlagsBefore снимает оба флага напоминаний у записей,
// датированных раньше переданной даты
func (r *BookingRepository) ClearReminderFlagsBefore(ctx context.Context, date time.Time) (int64, error) {
	affected, err := r.ExecAffected(ctx,
		`UPDATE bookings
		 SET reminder_24h_sent = FALSE, reminder_3h_sent = FALSE, updated_at = now()
		 WHERE booking_date < $1 AND (reminder_24h_sent OR reminder_3h_sent)`,
		date,
	)
	if err != nil {
		return 0, fmt.Errorf("clear reminder flags: %w", err)
	}
	return affected, nil
}
