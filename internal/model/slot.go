package model

import "time"

// Slot бронируемый отрезок фиксированной длины, выведенный из окна
// доступности. Слоты нигде не хранятся, они всегда вычисляются заново.
type Slot struct {
	TeacherID int64     `json:"teacher_id"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	Interval  Interval  `json:"interval"`
}
