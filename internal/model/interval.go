package model

import (
	"fmt"
	"time"
)

// SlotLengthMinutes фиксированная длительность одного бронируемого слота
const SlotLengthMinutes = 20

// MinutesPerDay количество минут в сутках
const MinutesPerDay = 24 * 60

// Interval интервал времени внутри одного дня, в минутах от полуночи.
// Единственное место в системе, где сравниваются интервалы: все проверки
// пересечений в доступности, слотах и бронированиях идут через Overlaps.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ParseClock разбирает время в формате "HH:MM" в минуты от полуночи
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time format %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock форматирует минуты от полуночи обратно в "HH:MM"
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NewInterval создаёт интервал из строк "HH:MM", проверяя порядок границ
func NewInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	if e <= s {
		return Interval{}, fmt.Errorf("interval %s-%s has non-positive duration", start, end)
	}
	return Interval{Start: s, End: e}, nil
}

// Duration длительность интервала в минутах
func (i Interval) Duration() int {
	return i.End - i.Start
}

// Overlaps проверяет пересечение полуоткрытых интервалов [Start, End)
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

// Contains проверяет, что other целиком лежит внутри интервала
func (i Interval) Contains(other Interval) bool {
	return other.Start >= i.Start && other.End <= i.End
}

func (i Interval) String() string {
	return FormatClock(i.Start) + "-" + FormatClock(i.End)
}

// ClockRange интервал в том виде, в котором его передаёт внешний слой:
// пара строк "HH:MM". Ядро разбирает его один раз на границе.
type ClockRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CombineDateMinute собирает момент времени из календарной даты и минуты дня
func CombineDateMinute(date time.Time, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minute/60, minute%60, 0, 0, date.Location())
}

// DateOnly обрезает момент времени до календарной даты
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
