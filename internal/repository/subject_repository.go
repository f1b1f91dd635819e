package repository

import (
	"context"
	"fmt"

	"github.com/esfot/tutoria-scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubjectRepository отдаёт ядру список активных дисциплин преподавателя.
// Каталог дисциплин целиком ведёт внешний слой, ядро его не изменяет.
type SubjectRepository struct {
	*base.Repository
}

func NewSubjectRepository(pool *pgxpool.Pool) *SubjectRepository {
	return &SubjectRepository{Repository: base.NewRepository(pool)}
}

// ActiveSubjects возвращает упорядоченный список имён активных дисциплин
// преподавателя. Именно этот список решает, какие окна доступности живые.
func (r *SubjectRepository) ActiveSubjects(ctx context.Context, teacherID int64) ([]string, error) {
	query := `
		SELECT name
		FROM subjects
		WHERE teacher_id = $1 AND is_active
		ORDER BY name
	`

	rows, err := r.Query(ctx, query, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list active subjects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan subject name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}
