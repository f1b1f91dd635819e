package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/esfot/tutoria-scheduler/internal/repository"
	"github.com/google/uuid"
)

// In-memory реализации контрактов хранилища. Фейк бронирований
// воспроизводит ограничения базы: пересечения активных записей
// отклоняются теми же ошибками, что и репозиторий.

type fakeBookingStore struct {
	mu       sync.Mutex
	seq      int64
	bookings map[int64]*model.Booking
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{bookings: make(map[int64]*model.Booking)}
}

func sameDate(a, b time.Time) bool {
	return model.DateOnly(a).Equal(model.DateOnly(b))
}

func (f *fakeBookingStore) checkOverlapLocked(candidate *model.Booking, excludeID int64) error {
	for _, other := range f.bookings {
		if other.ID == excludeID || !other.IsActive() || !sameDate(other.Date, candidate.Date) {
			continue
		}
		if !candidate.Interval.Overlaps(other.Interval) {
			continue
		}
		if other.TeacherID == candidate.TeacherID {
			return repository.ErrTeacherOverlap
		}
		if other.StudentID == candidate.StudentID {
			return repository.ErrStudentOverlap
		}
	}
	return nil
}

func (f *fakeBookingStore) Create(ctx context.Context, booking *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOverlapLocked(booking, 0); err != nil {
		return err
	}

	f.seq++
	booking.ID = f.seq
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	stored := *booking
	f.bookings[booking.ID] = &stored
	return nil
}

func (f *fakeBookingStore) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok {
		return nil, nil
	}
	copied := *booking
	return &copied, nil
}

func (f *fakeBookingStore) list(filter func(*model.Booking) bool) []*model.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Booking
	for _, booking := range f.bookings {
		if filter(booking) {
			copied := *booking
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeBookingStore) ListActiveByTeacherDate(ctx context.Context, teacherID int64, date time.Time) ([]*model.Booking, error) {
	return f.list(func(b *model.Booking) bool {
		return b.TeacherID == teacherID && b.IsActive() && sameDate(b.Date, date)
	}), nil
}

func (f *fakeBookingStore) ListActiveByStudentDate(ctx context.Context, studentID int64, date time.Time) ([]*model.Booking, error) {
	return f.list(func(b *model.Booking) bool {
		return b.StudentID == studentID && b.IsActive() && sameDate(b.Date, date)
	}), nil
}

func (f *fakeBookingStore) ListActiveByTeacherRange(ctx context.Context, teacherID int64, from, to time.Time) ([]*model.Booking, error) {
	return f.list(func(b *model.Booking) bool {
		d := model.DateOnly(b.Date)
		return b.TeacherID == teacherID && b.IsActive() && !d.Before(model.DateOnly(from)) && !d.After(model.DateOnly(to))
	}), nil
}

func (f *fakeBookingStore) ListByParticipant(ctx context.Context, role model.Role, participantID int64, includeTerminal bool) ([]*model.Booking, error) {
	return f.list(func(b *model.Booking) bool {
		if role == model.RoleStudent && b.StudentID != participantID {
			return false
		}
		if role == model.RoleTeacher && b.TeacherID != participantID {
			return false
		}
		return includeTerminal || b.IsActive()
	}), nil
}

func (f *fakeBookingStore) ListPendingByTeacher(ctx context.Context, teacherID int64) ([]*model.Booking, error) {
	return f.list(func(b *model.Booking) bool {
		return b.TeacherID == teacherID && b.Status == model.BookingStatusPending
	}), nil
}

func (f *fakeBookingStore) UpdateStatusFrom(ctx context.Context, id int64, to model.BookingStatus, from ...model.BookingStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if booking.Status == status {
			booking.Status = to
			booking.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookingStore) Reject(ctx context.Context, id int64, reason *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok || booking.Status != model.BookingStatusPending {
		return false, nil
	}
	booking.Status = model.BookingStatusRejected
	booking.RejectionReason = reason
	booking.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeBookingStore) Cancel(ctx context.Context, id int64, by model.Role, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok || !booking.IsActive() {
		return false, nil
	}
	booking.Status = model.BookingStatusCancelled
	booking.CancelledBy = &by
	booking.CancellationReason = &reason
	booking.Attended = nil
	booking.Observations = nil
	booking.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeBookingStore) Reschedule(ctx context.Context, updated *model.Booking) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[updated.ID]
	if !ok || !booking.IsActive() {
		return false, nil
	}
	if err := f.checkOverlapLocked(updated, updated.ID); err != nil {
		return false, err
	}

	booking.Date = updated.Date
	booking.Interval = updated.Interval
	booking.Subject = updated.Subject
	booking.BlockID = updated.BlockID
	booking.Status = model.BookingStatusPending
	booking.RescheduledBy = updated.RescheduledBy
	booking.RescheduledAt = updated.RescheduledAt
	booking.RescheduleReason = updated.RescheduleReason
	booking.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeBookingStore) Finalize(ctx context.Context, id int64, attended bool, observations *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok || booking.Status != model.BookingStatusConfirmed || booking.Attended != nil {
		return false, nil
	}
	booking.Status = model.BookingStatusFinalized
	booking.Attended = &attended
	booking.Observations = observations
	booking.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeBookingStore) Expire(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok || !booking.IsActive() {
		return false, nil
	}
	booking.Status = model.BookingStatusExpired
	booking.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeBookingStore) ListActiveEndedBefore(ctx context.Context, date time.Time, minute int) ([]*model.Booking, error) {
	return f.list(func(b *model.Booking) bool {
		if !b.IsActive() {
			return false
		}
		d := model.DateOnly(b.Date)
		return d.Before(model.DateOnly(date)) || (d.Equal(model.DateOnly(date)) && b.Interval.End < minute)
	}), nil
}

func (f *fakeBookingStore) ListConfirmedForReminder(ctx context.Context, tier model.ReminderTier, from, to time.Time) ([]*model.Booking, error) {
	return f.list(func(b *model.Booking) bool {
		if b.Status != model.BookingStatusConfirmed || b.ReminderSent(tier) {
			return false
		}
		d := model.DateOnly(b.Date)
		return !d.Before(model.DateOnly(from)) && !d.After(model.DateOnly(to))
	}), nil
}

func (f *fakeBookingStore) MarkReminderSent(ctx context.Context, id int64, tier model.ReminderTier) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok || booking.ReminderSent(tier) {
		return false, nil
	}
	if tier == model.ReminderTier24h {
		booking.Reminder24hSent = true
	} else {
		booking.Reminder3hSent = true
	}
	return true, nil
}

func (f *fakeBookingStore) ClearReminderFlagsBefore(ctx context.Context, date time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cleared int64
	for _, booking := range f.bookings {
		if !model.DateOnly(booking.Date).Before(model.DateOnly(date)) {
			continue
		}
		if booking.Reminder24hSent || booking.Reminder3hSent {
			booking.Reminder24hSent = false
			booking.Reminder3hSent = false
			cleared++
		}
	}
	return cleared, nil
}

type fakeAvailabilityStore struct {
	mu     sync.Mutex
	seq    int64
	blocks []*model.AvailabilityBlock
}

func newFakeAvailabilityStore() *fakeAvailabilityStore {
	return &fakeAvailabilityStore{}
}

func (f *fakeAvailabilityStore) insertLocked(teacherID int64, subject string, weekday time.Weekday, interval model.Interval, groupID uuid.UUID) *model.AvailabilityBlock {
	f.seq++
	block := &model.AvailabilityBlock{
		ID:        f.seq,
		GroupID:   groupID,
		TeacherID: teacherID,
		Subject:   subject,
		Weekday:   weekday,
		Interval:  interval,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.blocks = append(f.blocks, block)
	return block
}

func (f *fakeAvailabilityStore) removeLocked(keep func(*model.AvailabilityBlock) bool) int64 {
	var kept []*model.AvailabilityBlock
	var removed int64
	for _, block := range f.blocks {
		if keep(block) {
			kept = append(kept, block)
		} else {
			removed++
		}
	}
	f.blocks = kept
	return removed
}

func (f *fakeAvailabilityStore) ReplaceIdentity(ctx context.Context, teacherID int64, subject string, weekday time.Weekday, intervals []model.Interval, groupID uuid.UUID) ([]*model.AvailabilityBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeLocked(func(b *model.AvailabilityBlock) bool {
		return !(b.TeacherID == teacherID && b.Subject == subject && b.Weekday == weekday)
	})

	out := make([]*model.AvailabilityBlock, 0, len(intervals))
	for _, interval := range intervals {
		out = append(out, f.insertLocked(teacherID, subject, weekday, interval, groupID))
	}
	return out, nil
}

func (f *fakeAvailabilityStore) ReplaceForSubject(ctx context.Context, teacherID int64, subject string, byWeekday map[time.Weekday][]model.Interval, groupID uuid.UUID) ([]*model.AvailabilityBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeLocked(func(b *model.AvailabilityBlock) bool {
		return !(b.TeacherID == teacherID && b.Subject == subject)
	})

	var out []*model.AvailabilityBlock
	for weekday := time.Monday; weekday <= time.Friday; weekday++ {
		for _, interval := range byWeekday[weekday] {
			out = append(out, f.insertLocked(teacherID, subject, weekday, interval, groupID))
		}
	}
	return out, nil
}

func (f *fakeAvailabilityStore) DeleteIdentity(ctx context.Context, teacherID int64, subject string, weekday time.Weekday) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.removeLocked(func(b *model.AvailabilityBlock) bool {
		return !(b.TeacherID == teacherID && b.Subject == subject && b.Weekday == weekday)
	}), nil
}

func (f *fakeAvailabilityStore) GetByID(ctx context.Context, id int64) (*model.AvailabilityBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, block := range f.blocks {
		if block.ID == id {
			copied := *block
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAvailabilityStore) ListByTeacher(ctx context.Context, teacherID int64, subject *string) ([]*model.AvailabilityBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.AvailabilityBlock
	for _, block := range f.blocks {
		if block.TeacherID != teacherID {
			continue
		}
		if subject != nil && block.Subject != *subject {
			continue
		}
		copied := *block
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeAvailabilityStore) ListByTeacherWeekday(ctx context.Context, teacherID int64, weekday time.Weekday) ([]*model.AvailabilityBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.AvailabilityBlock
	for _, block := range f.blocks {
		if block.TeacherID == teacherID && block.Weekday == weekday {
			copied := *block
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeSubjectDirectory struct {
	active map[int64][]string
}

func (f *fakeSubjectDirectory) ActiveSubjects(ctx context.Context, teacherID int64) ([]string, error) {
	return f.active[teacherID], nil
}

type fakeContactDirectory struct {
	contacts map[int64]*model.Contact
}

func (f *fakeContactDirectory) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	return f.contacts[id], nil
}

type sentMessage struct {
	To       string
	Template string
	Data     map[string]string
}

// recordingNotifier запоминает отправки; адреса из failTo отправляются с ошибкой
type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[string]bool
}

func (n *recordingNotifier) Send(ctx context.Context, to, template string, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failTo[to] {
		return fmt.Errorf("delivery to %s failed", to)
	}
	n.sent = append(n.sent, sentMessage{To: to, Template: template, Data: data})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}
