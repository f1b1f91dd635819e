package model

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilityBlock окно доступности преподавателя: один непрерывный
// интервал одного дня недели для одной дисциплины. Идентичность
// (teacher, weekday, subject) может владеть несколькими такими строками.
type AvailabilityBlock struct {
	ID        int64        `json:"id"`
	GroupID   uuid.UUID    `json:"group_id"` // ревизия: все строки одной перезаписи делят GroupID
	TeacherID int64        `json:"teacher_id"`
	Subject   string       `json:"subject"`
	Weekday   time.Weekday `json:"weekday"` // только Monday..Friday
	Interval  Interval     `json:"interval"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IsTeachingDay проверяет, что день недели входит в учебную неделю (пн-пт)
func IsTeachingDay(d time.Weekday) bool {
	return d >= time.Monday && d <= time.Friday
}
