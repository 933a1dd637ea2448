package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Webmata/internal/domain"
)

// LogRepo — репозиторий журнала выполнения (execution_logs).
type LogRepo struct {
	pool *pgxpool.Pool
}

// NewLogRepo создаёт новый LogRepo.
func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

// AppendLog добавляет запись в журнал. ID и Timestamp заполняются из БД,
// если не заданы.
func (r *LogRepo) AppendLog(ctx context.Context, entry *domain.ExecutionLog) error {
	var detailsJSON []byte
	if entry.ErrorDetails != nil {
		var err error
		if detailsJSON, err = marshalJSON("error_details", entry.ErrorDetails); err != nil {
			return err
		}
	}
	if entry.Level == "" {
		entry.Level = domain.LogLevelInfo
	}

	query := `
		INSERT INTO execution_logs (task_id, step_id, step_name, level, message,
		                            screenshot_path, error_details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		RETURNING id, timestamp
	`
	var ts any
	if !entry.Timestamp.IsZero() {
		ts = entry.Timestamp
	}
	err := r.pool.QueryRow(ctx, query,
		entry.TaskID,
		nullInt64(entry.StepID),
		entry.StepName,
		entry.Level,
		entry.Message,
		nullString(entry.ScreenshotPath),
		detailsJSON,
		ts,
	).Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert execution log: %w", err)
	}
	return nil
}

// ListByTask возвращает журнал задачи, новые записи первыми.
// Пустой level — все уровни.
func (r *LogRepo) ListByTask(ctx context.Context, taskID int64, level domain.LogLevel, page Page) ([]domain.ExecutionLog, error) {
	page = page.normalize()

	query := `
		SELECT id, task_id, step_id, step_name, level, message,
		       screenshot_path, error_details, timestamp
		FROM execution_logs
		WHERE task_id = $1
		  AND ($2::text IS NULL OR level = $2)
		ORDER BY timestamp DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, taskID, nullString(string(level)), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.ExecutionLog{}
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *entry)
	}
	return logs, rows.Err()
}

func scanLog(row pgx.Row) (*domain.ExecutionLog, error) {
	var entry domain.ExecutionLog
	var screenshot *string
	var detailsJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.TaskID,
		&entry.StepID,
		&entry.StepName,
		&entry.Level,
		&entry.Message,
		&screenshot,
		&detailsJSON,
		&entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("scan execution log: %w", err)
	}

	if screenshot != nil {
		entry.ScreenshotPath = *screenshot
	}
	if entry.ErrorDetails, err = unmarshalJSON("error_details", detailsJSON); err != nil {
		return nil, err
	}
	return &entry, nil
}
