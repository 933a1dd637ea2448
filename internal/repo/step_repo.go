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

// StepRepo — репозиторий для работы с automation_steps.
type StepRepo struct {
	pool *pgxpool.Pool
}

// NewStepRepo создаёт новый StepRepo.
func NewStepRepo(pool *pgxpool.Pool) *StepRepo {
	return &StepRepo{pool: pool}
}

const stepColumns = `
	id, task_id, step_name, step_order, action_type, target_selector,
	target_text, target_url, parameters, wait_time, timeout,
	created_at, updated_at
`

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Create создаёт шаг. Отрицательный StepOrder ставит шаг в конец задачи.
func (r *StepRepo) Create(ctx context.Context, step *domain.AutomationStep) error {
	return insertStep(ctx, r.pool, step)
}

// CreateMany добавляет шаги в конец задачи в одной транзакции.
// StepOrder шагов пересчитывается подряд после последнего существующего.
func (r *StepRepo) CreateMany(ctx context.Context, taskID int64, steps []domain.AutomationStep) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(step_order) + 1, 0) FROM automation_steps WHERE task_id = $1`,
		taskID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next step order: %w", err)
	}

	for i := range steps {
		steps[i].TaskID = taskID
		steps[i].StepOrder = next + i
		if err := insertStep(ctx, tx, &steps[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertStep(ctx context.Context, q querier, step *domain.AutomationStep) error {
	paramsJSON, err := marshalJSON("parameters", step.Parameters)
	if err != nil {
		return err
	}
	if step.Timeout <= 0 {
		step.Timeout = domain.DefaultStepTimeout
	}

	query := `
		INSERT INTO automation_steps (task_id, step_name, step_order, action_type,
		                              target_selector, target_text, target_url,
		                              parameters, wait_time, timeout)
		SELECT $1::bigint, $2,
		       CASE WHEN $3::int >= 0 THEN $3::int
		            ELSE (SELECT COALESCE(MAX(step_order) + 1, 0) FROM automation_steps WHERE task_id = $1::bigint)
		       END,
		       $4, $5, $6, $7, $8, $9, $10
		WHERE EXISTS (SELECT 1 FROM tasks WHERE id = $1::bigint)
		RETURNING id, step_order, created_at
	`
	err = q.QueryRow(ctx, query,
		step.TaskID,
		step.StepName,
		step.StepOrder,
		step.ActionType,
		step.TargetSelector,
		step.TargetText,
		step.TargetURL,
		paramsJSON,
		step.WaitTime,
		step.Timeout,
	).Scan(&step.ID, &step.StepOrder, &step.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: task %d", ErrNotFound, step.TaskID)
	}
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// Get возвращает шаг по ID.
func (r *StepRepo) Get(ctx context.Context, id int64) (*domain.AutomationStep, error) {
	query := `SELECT ` + stepColumns + ` FROM automation_steps WHERE id = $1`
	return scanStep(r.pool.QueryRow(ctx, query, id))
}

// ListByTask возвращает шаги задачи по возрастанию step_order.
func (r *StepRepo) ListByTask(ctx context.Context, taskID int64) ([]domain.AutomationStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM automation_steps
		WHERE task_id = $1
		ORDER BY step_order ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list steps by task: %w", err)
	}
	defer rows.Close()

	steps := []domain.AutomationStep{}
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// Update обновляет шаг.
func (r *StepRepo) Update(ctx context.Context, step *domain.AutomationStep) error {
	paramsJSON, err := marshalJSON("parameters", step.Parameters)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `
		UPDATE automation_steps
		SET step_name = $2, step_order = $3, action_type = $4, target_selector = $5,
		    target_text = $6, target_url = $7, parameters = $8, wait_time = $9,
		    timeout = $10, updated_at = $11
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		step.ID,
		step.StepName,
		step.StepOrder,
		step.ActionType,
		step.TargetSelector,
		step.TargetText,
		step.TargetURL,
		paramsJSON,
		step.WaitTime,
		step.Timeout,
		now,
	)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	step.UpdatedAt = &now
	return nil
}

// Delete удаляет шаг.
func (r *StepRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM automation_steps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func scanStep(row pgx.Row) (*domain.AutomationStep, error) {
	var step domain.AutomationStep
	var paramsJSON []byte

	err := row.Scan(
		&step.ID,
		&step.TaskID,
		&step.StepName,
		&step.StepOrder,
		&step.ActionType,
		&step.TargetSelector,
		&step.TargetText,
		&step.TargetURL,
		&paramsJSON,
		&step.WaitTime,
		&step.Timeout,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}

	if step.Parameters, err = unmarshalJSON("parameters", paramsJSON); err != nil {
		return nil, err
	}
	return &step, nil
}
