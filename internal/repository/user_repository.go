package repository

import (
	"context"
	"fmt"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/esfot/tutoria-scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository отдаёт контактные данные участников для адресации
// уведомлений. Аутентификация и профили живут во внешнем слое.
type UserRepository struct {
	*base.Repository
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{Repository: base.NewRepository(pool)}
}

// GetContact получает контакт по ID
func (r *UserRepository) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	query := `
		SELECT id, full_name, email, role, created_at
		FROM users
		WHERE id = $1
	`

	var contact model.Contact
	err := r.QueryRow(ctx, query, id).Scan(
		&contact.ID,
		&contact.FullName,
		&contact.Email,
		&contact.Role,
		&contact.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contact by id: %w", err)
	}

	return &contact, nil
}
