package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/render"
	"github.com/shaiso/Webmata/internal/telemetry"
)

// Preview выполняет шаги задачи в одноразовой сессии в фоне.
//
// Между шагами выдерживается PreviewDelay, первая ошибка останавливает
// предпросмотр. Статус и счётчики задачи не меняются.
func (o *Orchestrator) Preview(ctx context.Context, taskID int64) (string, error) {
	if o.IsStopped() {
		return "", ErrOrchestratorStopped
	}

	task, err := o.loadTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	steps, err := o.steps.ListByTask(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("load steps: %w", err)
	}
	if len(steps) == 0 {
		return "", fmt.Errorf("%w: task %d", ErrNoStepsConfigured, taskID)
	}
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})

	previewID := domain.NewPreviewID(taskID, time.Now())
	o.putRecord(&domain.ExecutionRecord{
		ExecutionID: previewID,
		Kind:        domain.ExecutionKindPreview,
		TaskIDs:     []int64{taskID},
		Status:      domain.ExecutionStatusRunning,
		TotalSteps:  len(steps),
		StartedAt:   time.Now(),
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.previews[previewID] = cancel
	o.mu.Unlock()

	o.spawn(func(base context.Context) {
		stop := context.AfterFunc(base, cancel)
		defer stop()
		defer cancel()

		o.runPreview(runCtx, previewID, task, steps)

		o.mu.Lock()
		delete(o.previews, previewID)
		o.mu.Unlock()
	})

	return previewID, nil
}

// PreviewResult возвращает запись предпросмотра.
func (o *Orchestrator) PreviewResult(previewID string) (domain.ExecutionRecord, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	rec, ok := o.records[previewID]
	if !ok || rec.Kind != domain.ExecutionKindPreview {
		return domain.ExecutionRecord{}, false
	}
	return rec.Clone(), true
}

func (o *Orchestrator) runPreview(ctx context.Context, previewID string, task *domain.Task, steps []domain.AutomationStep) {
	logger := telemetry.WithTaskID(o.logger, task.ID).With("preview_id", previewID)

	status, errMsg := o.previewSteps(ctx, previewID, task, steps)

	var record domain.ExecutionRecord
	o.updateRecord(previewID, func(rec *domain.ExecutionRecord) {
		rec.MarkFinished(status, errMsg)
		record = rec.Clone()
	})

	telemetry.ExecutionsTotal.WithLabelValues(string(domain.ExecutionKindPreview), string(status)).Inc()

	logger.Info("preview finished", "status", status, "steps", len(record.Outcomes), "error", errMsg)
	o.emit(ctx, domain.NewEvent(domain.EventPreviewFinished, previewID, task.ID, map[string]any{
		"status":         string(status),
		"executed_steps": len(record.Outcomes),
		"total_steps":    record.TotalSteps,
		"error":          errMsg,
	}))
}

// previewSteps выполняет шаги до первой ошибки.
func (o *Orchestrator) previewSteps(ctx context.Context, previewID string, task *domain.Task, steps []domain.AutomationStep) (domain.ExecutionStatus, string) {
	logger := telemetry.WithTaskID(o.logger, task.ID).With("preview_id", previewID)

	launch, err := o.sessions.Launch(ctx, domain.BrowserConfig{})
	if err != nil {
		logger.Error("failed to launch preview session", "error", err)
		return domain.ExecutionStatusFailed, fmt.Sprintf("session launch failed: %v", err)
	}
	defer o.sessions.Close(launch.SessionID)

	vars := render.NewContext(task.Parameters)
	if task.URL != "" {
		if err := o.openTaskURL(launch.SessionID, task.URL, vars); err != nil {
			return domain.ExecutionStatusFailed, fmt.Sprintf("initial navigation failed: %v", err)
		}
	}

	for i := range steps {
		step := &steps[i]

		if i > 0 && o.previewDelay > 0 {
			select {
			case <-time.After(o.previewDelay):
			case <-ctx.Done():
				return domain.ExecutionStatusStopped, "preview stopped"
			}
		}
		if ctx.Err() != nil {
			return domain.ExecutionStatusStopped, "preview stopped"
		}

		o.updateRecord(previewID, func(rec *domain.ExecutionRecord) {
			rec.CurrentStep = i
			rec.CurrentStepName = step.StepName
		})

		res, err := o.runStep(ctx, step, launch.SessionID, vars)
		so := domain.StepOutcome{
			StepID:    step.ID,
			StepName:  step.StepName,
			StepOrder: step.StepOrder,
			Action:    step.ActionType,
			Success:   err == nil && res != nil && res.Success,
		}
		if res != nil {
			so.Data = res.Data
		}
		if err != nil {
			so.Error = err.Error()
		}

		o.updateRecord(previewID, func(rec *domain.ExecutionRecord) {
			rec.Outcomes = append(rec.Outcomes, so)
			rec.CurrentStep = len(rec.Outcomes)
		})
		o.emit(ctx, domain.Event{
			Type:        domain.EventPreviewStep,
			ExecutionID: previewID,
			TaskID:      task.ID,
			SessionID:   launch.SessionID,
			Data: map[string]any{
				"step_index":  i,
				"total_steps": len(steps),
				"step_name":   step.StepName,
				"action":      string(step.ActionType),
				"success":     so.Success,
				"data":        so.Data,
				"error":       so.Error,
			},
			Timestamp: time.Now(),
		})

		if err != nil {
			logger.Warn("preview step failed", "step_id", step.ID, "error", err)
			return domain.ExecutionStatusFailed, fmt.Sprintf("step %q failed: %v", step.StepName, err)
		}
	}

	return domain.ExecutionStatusCompleted, ""
}
