package repository

import "errors"

// Ошибки уровня хранилища. Сервисный слой переводит их в свою таксономию.
var (
	// ErrTeacherOverlap строка нарушила exclusion-ограничение по интервалам
	// преподавателя: другая активная запись уже занимает пересекающийся интервал
	ErrTeacherOverlap = errors.New("teacher interval overlap")

	// ErrStudentOverlap то же для интервалов студента
	ErrStudentOverlap = errors.New("student interval overlap")
)
