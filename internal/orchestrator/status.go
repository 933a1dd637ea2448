package orchestrator

import (
	"context"
	"time"

	"github.com/shaiso/Webmata/internal/domain"
)

// StatusView — статус задачи с прогрессом выполнения.
type StatusView struct {
	TaskID              int64             `json:"task_id"`
	Status              domain.TaskStatus `json:"status"`
	Progress            float64           `json:"progress"`
	CurrentStep         string            `json:"current_step,omitempty"`
	CurrentStepIndex    int               `json:"current_step_index"`
	TotalSteps          int               `json:"total_steps"`
	ExecutionID         string            `json:"execution_id,omitempty"`
	StartedAt           *time.Time        `json:"started_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time        `json:"estimated_completion,omitempty"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	ExecutionCount      int               `json:"execution_count"`
	SuccessCount        int               `json:"success_count"`
	FailureCount        int               `json:"failure_count"`
}

// TaskStatus возвращает статус задачи.
//
// Для выполняющейся задачи прогресс берётся из числа выполненных шагов
// (не больше 90%), иначе оценивается по времени.
func (o *Orchestrator) TaskStatus(ctx context.Context, taskID int64) (*StatusView, error) {
	task, err := o.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	view := &StatusView{
		TaskID:         task.ID,
		Status:         task.Status,
		StartedAt:      task.StartedAt,
		CompletedAt:    task.CompletedAt,
		ErrorMessage:   task.ErrorMessage,
		ExecutionCount: task.ExecutionCount,
		SuccessCount:   task.SuccessCount,
		FailureCount:   task.FailureCount,
	}

	if state := o.getActive(taskID); state != nil {
		rec := state.Record()
		view.ExecutionID = rec.ExecutionID
		view.CurrentStep = rec.CurrentStepName
		view.CurrentStepIndex = rec.CurrentStep
		view.TotalSteps = rec.TotalSteps
		if rec.TotalSteps > 0 {
			view.Progress = min(float64(rec.CurrentStep)/float64(rec.TotalSteps)*100, 90)
			view.EstimatedCompletion = task.EstimatedCompletion(now, view.Progress)
			return view, nil
		}
	}

	if view.TotalSteps == 0 {
		steps, err := o.steps.ListByTask(ctx, taskID)
		if err != nil {
			o.logger.Warn("failed to count task steps", "task_id", taskID, "error", err)
		}
		view.TotalSteps = len(steps)
	}

	view.Progress = task.Progress(now, view.TotalSteps)
	view.EstimatedCompletion = task.EstimatedCompletion(now, view.Progress)
	return view, nil
}
