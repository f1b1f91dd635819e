package model

import "time"

// Contact адресат уведомлений. Профили целиком живут во внешнем слое,
// ядру нужны только имя и почта.
type Contact struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
