package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/esfot/tutoria-scheduler/internal/model"
	"github.com/esfot/tutoria-scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const availabilityColumns = `id, group_id, teacher_id, subject, weekday, start_minute, end_minute, created_at, updated_at`

type AvailabilityRepository struct {
	*base.Repository
}

func NewAvailabilityRepository(pool *pgxpool.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{Repository: base.NewRepository(pool)}
}

func scanAvailabilityBlock(row pgx.Row) (*model.AvailabilityBlock, error) {
	var block model.AvailabilityBlock
	var weekday int
	err := row.Scan(
		&block.ID,
		&block.GroupID,
		&block.TeacherID,
		&block.Subject,
		&weekday,
		&block.Interval.Start,
		&block.Interval.End,
		&block.CreatedAt,
		&block.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	block.Weekday = time.Weekday(weekday)
	return &block, nil
}

// insertBlock вставляет одну строку доступности внутри транзакции
func insertBlock(ctx context.Context, tx pgx.Tx, block *model.AvailabilityBlock) error {
	query := `
		INSERT INTO availability_blocks (group_id, teacher_id, subject, weekday, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx, query,
		block.GroupID,
		block.TeacherID,
		block.Subject,
		int(block.Weekday),
		block.Interval.Start,
		block.Interval.End,
	).Scan(&block.ID, &block.CreatedAt, &block.UpdatedAt)

	if err != nil {
		return fmt.Errorf("insert availability block: %w", err)
	}

	return nil
}

// ReplaceIdentity атомарно заменяет все интервалы идентичности
// (teacher, subject, weekday) на переданный набор
func (r *AvailabilityRepository) ReplaceIdentity(
	ctx context.Context,
	teacherID int64,
	subject string,
	weekday time.Weekday,
	intervals []model.Interval,
	groupID uuid.UUID,
) ([]*model.AvailabilityBlock, error) {
	tx, err := r.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM availability_blocks WHERE teacher_id = $1 AND subject = $2 AND weekday = $3`,
		teacherID, subject, int(weekday),
	)
	if err != nil {
		return nil, fmt.Errorf("delete availability identity: %w", err)
	}

	blocks := make([]*model.AvailabilityBlock, 0, len(intervals))
	for _, interval := range intervals {
		block := &model.AvailabilityBlock{
			GroupID:   groupID,
			TeacherID: teacherID,
			Subject:   subject,
			Weekday:   weekday,
			Interval:  interval,
		}
		if err := insertBlock(ctx, tx, block); err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return blocks, nil
}

// ReplaceForSubject атомарно удаляет все строки дисциплины у преподавателя
// и создаёт новые по переданным дням недели
func (r *AvailabilityRepository) ReplaceForSubject(
	ctx context.Context,
	teacherID int64,
	subject string,
	byWeekday map[time.Weekday][]model.Interval,
	groupID uuid.UUID,
) ([]*model.AvailabilityBlock, error) {
	tx, err := r.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM availability_blocks WHERE teacher_id = $1 AND subject = $2`,
		teacherID, subject,
	)
	if err != nil {
		return nil, fmt.Errorf("delete availability for subject: %w", err)
	}

	var blocks []*model.AvailabilityBlock
	// Обходим дни в стабильном порядке, чтобы строки создавались предсказуемо
	for weekday := time.Monday; weekday <= time.Friday; weekday++ {
		for _, interval := range byWeekday[weekday] {
			block := &model.AvailabilityBlock{
				GroupID:   groupID,
				TeacherID: teacherID,
				Subject:   subject,
				Weekday:   weekday,
				Interval:  interval,
			}
			if err := insertBlock(ctx, tx, block); err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return blocks, nil
}

// DeleteIdentity удаляет все интервалы идентичности (teacher, subject, weekday).
// Отсутствие строк не считается ошибкой.
func (r *AvailabilityRepository) DeleteIdentity(ctx context.Context, teacherID int64, subject string, weekday time.Weekday) (int64, error) {
	deleted, err := r.ExecAffected(ctx,
		`DELETE FROM availability_blocks WHERE teacher_id = $1 AND subject = $2 AND weekday = $3`,
		teacherID, subject, int(weekday),
	)
	if err != nil {
		return 0, fmt.Errorf("delete availability identity: %w", err)
	}
	return deleted, nil
}

// GetByID получает строку доступности по ID
func (r *AvailabilityRepository) GetByID(ctx context.Context, id int64) (*model.AvailabilityBlock, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_blocks WHERE id = $1`

	block, err := scanAvailabilityBlock(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability block by id: %w", err)
	}

	return block, nil
}

// ListByTeacher получает все строки доступности преподавателя,
// опционально отфильтрованные по дисциплине
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, teacherID int64, subject *string) ([]*model.AvailabilityBlock, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_blocks
		WHERE teacher_id = $1 AND ($2::text IS NULL OR subject = $2)
		ORDER BY subject, weekday, start_minute
	`

	rows, err := r.Query(ctx, query, teacherID, subject)
	if err != nil {
		return nil, fmt.Errorf("list availability by teacher: %w", err)
	}
	defer rows.Close()

	var blocks []*model.AvailabilityBlock
	for rows.Next() {
		block, err := scanAvailabilityBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability block: %w", err)
		}
		blocks = append(blocks, block)
	}

	return blocks, rows.Err()
}

// ListByTeacherWeekday получает все строки доступности преподавателя на день недели
func (r *AvailabilityRepository) ListByTeacherWeekday(ctx context.Context, teacherID int64, weekday time.Weekday) ([]*model.AvailabilityBlock, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_blocks
		WHERE teacher_id = $1 AND weekday = $2
		ORDER BY start_minute
	`

	rows, err := r.Query(ctx, query, teacherID, int(weekday))
	if err != nil {
		return nil, fmt.Errorf("list availability by weekday: %w", err)
	}
	defer rows.Close()

	var blocks []*model.AvailabilityBlock
	for rows.Next() {
		block, err := scanAvailabilityBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability block: %w", err)
		}
		blocks = append(blocks, block)
	}

	return blocks, rows.Err()
}
