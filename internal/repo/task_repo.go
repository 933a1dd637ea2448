package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Webmata/internal/domain"
)

// TaskRepo — репозиторий для работы с tasks.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// TaskFilter — фильтр для списка задач.
type TaskFilter struct {
	Status domain.TaskStatus
	Page
}

const taskColumns = `
	id, name, description, url, status, priority, parameters, result,
	error_message, execution_count, success_count, failure_count,
	created_at, updated_at, started_at, completed_at
`

// Create создаёт задачу в статусе pending. ID и CreatedAt заполняются из БД.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	paramsJSON, err := marshalJSON("parameters", task.Parameters)
	if err != nil {
		return err
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}

	query := `
		INSERT INTO tasks (name, description, url, status, priority, parameters)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = r.pool.QueryRow(ctx, query,
		task.Name,
		task.Description,
		task.URL,
		task.Status,
		task.Priority,
		paramsJSON,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get возвращает задачу по ID.
func (r *TaskRepo) Get(ctx context.Context, id int64) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// List возвращает задачи, новые первыми.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	page := filter.Page.normalize()

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		page.Limit,
		page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Update обновляет редактируемые поля задачи: имя, описание, URL,
// приоритет и параметры.
func (r *TaskRepo) Update(ctx context.Context, task *domain.Task) error {
	paramsJSON, err := marshalJSON("parameters", task.Parameters)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `
		UPDATE tasks
		SET name = $2, description = $3, url = $4, priority = $5,
		    parameters = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Name,
		task.Description,
		task.URL,
		task.Priority,
		paramsJSON,
		now,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	task.UpdatedAt = &now
	return nil
}

// UpdateExecution сохраняет статус, время, пометку, результат и счётчики.
func (r *TaskRepo) UpdateExecution(ctx context.Context, task *domain.Task) error {
	var resultJSON []byte
	if task.Result != nil {
		var err error
		resultJSON, err = marshalJSON("result", task.Result)
		if err != nil {
			return err
		}
	}

	query := `
		UPDATE tasks
		SET status = $2, result = $3, error_message = $4,
		    execution_count = $5, success_count = $6, failure_count = $7,
		    started_at = $8, completed_at = $9, updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		resultJSON,
		nullString(task.ErrorMessage),
		task.ExecutionCount,
		task.SuccessCount,
		task.FailureCount,
		task.StartedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update task execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет задачу вместе с шагами и журналом.
// Выполняющуюся задачу удалить нельзя.
func (r *TaskRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND status <> 'running'`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: task %d is running", ErrInvalidState, id)
}

// Stats возвращает сводную статистику по задачам.
func (r *TaskRepo) Stats(ctx context.Context) (*domain.TaskStats, error) {
	stats := &domain.TaskStats{
		StatusBreakdown: make(map[domain.TaskStatus]int),
	}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.StatusBreakdown[status] = count
		stats.TotalTasks += count
		if status == domain.TaskStatusPending || status == domain.TaskStatusRunning {
			stats.ActiveTasks += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE created_at >= $1`,
		time.Now().AddDate(0, 0, -7),
	).Scan(&stats.RecentTasks7d)
	if err != nil {
		return nil, fmt.Errorf("count recent tasks: %w", err)
	}

	stats.SuccessRate = domain.SuccessRate(stats.StatusBreakdown[domain.TaskStatusCompleted], stats.TotalTasks)
	return stats, nil
}

// --- Helpers ---

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var paramsJSON, resultJSON []byte
	var errMsg *string

	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.Description,
		&task.URL,
		&task.Status,
		&task.Priority,
		&paramsJSON,
		&resultJSON,
		&errMsg,
		&task.ExecutionCount,
		&task.SuccessCount,
		&task.FailureCount,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.StartedAt,
		&task.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if task.Parameters, err = unmarshalJSON("parameters", paramsJSON); err != nil {
		return nil, err
	}
	if task.Result, err = unmarshalJSON("result", resultJSON); err != nil {
		return nil, err
	}
	if errMsg != nil {
		task.ErrorMessage = *errMsg
	}
	return &task, nil
}
