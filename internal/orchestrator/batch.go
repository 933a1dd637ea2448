package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/telemetry"
)

// errBatchStopped — задача batch пропущена после остановки batch.
var errBatchStopped = errors.New("batch stopped")

// ExecuteBatch запускает задачи параллельно в фоне.
// Возвращает идентификатор batch.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, taskIDs []int64) (string, error) {
	if len(taskIDs) == 0 {
		return "", ErrEmptyBatch
	}
	if o.IsStopped() {
		return "", ErrOrchestratorStopped
	}

	batchID := domain.NewBatchID(time.Now())
	o.startBatch(ctx, batchID, taskIDs)

	o.spawn(func(ctx context.Context) {
		o.runBatch(ctx, batchID, taskIDs)
	})

	return batchID, nil
}

// RunBatch выполняет задачи параллельно и ждёт окончания всех.
//
// Параллельность ограничена MaxConcurrent. Ошибка одной задачи не
// влияет на остальные.
func (o *Orchestrator) RunBatch(ctx context.Context, taskIDs []int64, batchID string) (domain.ExecutionRecord, error) {
	if len(taskIDs) == 0 {
		return domain.ExecutionRecord{}, ErrEmptyBatch
	}
	o.startBatch(ctx, batchID, taskIDs)
	return o.runBatch(ctx, batchID, taskIDs), nil
}

// startBatch регистрирует запись batch.
func (o *Orchestrator) startBatch(ctx context.Context, batchID string, taskIDs []int64) {
	o.putRecord(&domain.ExecutionRecord{
		ExecutionID: batchID,
		Kind:        domain.ExecutionKindBatch,
		TaskIDs:     append([]int64(nil), taskIDs...),
		Status:      domain.ExecutionStatusRunning,
		TotalTasks:  len(taskIDs),
		StartedAt:   time.Now(),
	})

	o.logger.Info("batch started", "batch_id", batchID, "tasks", len(taskIDs))
	o.emit(ctx, domain.NewEvent(domain.EventBatchStarted, batchID, 0, map[string]any{
		"task_ids":    taskIDs,
		"total_tasks": len(taskIDs),
	}))
}

func (o *Orchestrator) runBatch(ctx context.Context, batchID string, taskIDs []int64) domain.ExecutionRecord {
	logger := o.logger.With("batch_id", batchID)

	var g errgroup.Group
	if o.maxConcurrent > 0 {
		g.SetLimit(o.maxConcurrent)
	}

	for _, taskID := range taskIDs {
		g.Go(func() error {
			status, err := o.runMember(ctx, batchID, taskID)

			failed := err != nil || status != domain.TaskStatusCompleted
			if err != nil {
				logger.Warn("batch task failed", "task_id", taskID, "error", err)
			}

			o.updateRecord(batchID, func(rec *domain.ExecutionRecord) {
				if failed {
					rec.FailedTasks++
				} else {
					rec.CompletedTasks++
				}
			})
			// Ошибки задач не прерывают группу.
			return nil
		})
	}
	_ = g.Wait()

	status := domain.ExecutionStatusCompleted
	if o.isBatchStopped(batchID) {
		status = domain.ExecutionStatusStopped
	}

	var record domain.ExecutionRecord
	o.updateRecord(batchID, func(rec *domain.ExecutionRecord) {
		rec.MarkFinished(status, "")
		record = rec.Clone()
	})

	o.mu.Lock()
	delete(o.stoppedBatches, batchID)
	o.mu.Unlock()

	telemetry.ExecutionsTotal.WithLabelValues(string(domain.ExecutionKindBatch), string(status)).Inc()

	logger.Info("batch finished",
		"status", status,
		"completed", record.CompletedTasks,
		"failed", record.FailedTasks,
	)
	o.emit(ctx, domain.NewEvent(domain.EventBatchFinished, batchID, 0, map[string]any{
		"status":          string(status),
		"total_tasks":     record.TotalTasks,
		"completed_tasks": record.CompletedTasks,
		"failed_tasks":    record.FailedTasks,
	}))

	return record
}

// runMember выполняет одну задачу batch.
func (o *Orchestrator) runMember(ctx context.Context, batchID string, taskID int64) (domain.TaskStatus, error) {
	if o.isBatchStopped(batchID) {
		return "", fmt.Errorf("%w: task %d skipped", errBatchStopped, taskID)
	}
	return o.run(ctx, taskID, domain.BatchMemberID(batchID, taskID), RunOptions{})
}
