package model

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Actor аутентифицированный участник операции. Разрешение ролей происходит
// во внешнем слое, ядро получает уже типизированную пару id+роль.
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

func (a Actor) IsStudent() bool {
	return a.Role == RoleStudent
}

func (a Actor) IsTeacher() bool {
	return a.Role == RoleTeacher
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
