package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/executor"
	"github.com/shaiso/Webmata/internal/render"
	"github.com/shaiso/Webmata/internal/telemetry"
)

// outcome — итог выполнения задачи перед сохранением.
type outcome struct {
	status domain.TaskStatus
	note   string

	// infra — инфраструктурный сбой: счётчики не меняются.
	infra bool
	err   error
}

// runClaimed выполняет захваченную задачу до финального статуса.
//
// Сессия браузера закрывается всегда, в том числе при panic.
func (o *Orchestrator) runClaimed(ctx context.Context, task *domain.Task, state *RunState) (status domain.TaskStatus, err error) {
	logger := telemetry.WithExecutionID(telemetry.WithTaskID(o.logger, task.ID), state.ExecutionID)

	var res outcome
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task execution panicked", "panic", r)
			res = outcome{
				status: domain.TaskStatusFailed,
				note:   fmt.Sprintf("execution panic: %v", r),
				infra:  true,
				err:    fmt.Errorf("execution panic: %v", r),
			}
		}
		o.finish(ctx, task, state, res)
		status, err = res.status, res.err
	}()

	res = o.executeSteps(ctx, task, state)
	return res.status, res.err
}

// executeSteps загружает шаги, открывает сессию и выполняет шаги по порядку.
func (o *Orchestrator) executeSteps(ctx context.Context, task *domain.Task, state *RunState) outcome {
	logger := telemetry.WithExecutionID(telemetry.WithTaskID(o.logger, task.ID), state.ExecutionID)
	startedAt := time.Now()

	steps, err := o.steps.ListByTask(ctx, task.ID)
	if err != nil {
		return outcome{
			status: domain.TaskStatusFailed,
			note:   fmt.Sprintf("load steps: %v", err),
			infra:  true,
			err:    fmt.Errorf("load steps: %w", err),
		}
	}
	if len(steps) == 0 {
		logger.Warn("task has no steps")
		return outcome{
			status: domain.TaskStatusFailed,
			note:   ErrNoStepsConfigured.Error(),
			infra:  true,
			err:    ErrNoStepsConfigured,
		}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})
	state.SetTotalSteps(len(steps))

	launch, err := o.sessions.Launch(ctx, domain.BrowserConfig{})
	if err != nil {
		logger.Error("failed to launch browser session", "error", err)
		return outcome{
			status: domain.TaskStatusFailed,
			note:   fmt.Sprintf("session launch failed: %v", err),
			infra:  true,
			err:    err,
		}
	}
	sessionID := launch.SessionID
	state.SessionID = sessionID
	defer o.sessions.Close(sessionID)

	logger = telemetry.WithSessionID(logger, sessionID)
	logger.Info("task execution started", "steps", len(steps))
	o.appendLog(ctx, task.ID, domain.LogLevelInfo, fmt.Sprintf("execution started: %s (%d steps)", state.ExecutionID, len(steps)))

	vars := render.NewContext(task.Parameters)
	if task.URL != "" {
		if err := o.openTaskURL(sessionID, task.URL, vars); err != nil {
			logger.Error("failed to open task url", "url", task.URL, "error", err)
			return outcome{
				status: domain.TaskStatusFailed,
				note:   fmt.Sprintf("initial navigation failed: %v", err),
				infra:  true,
				err:    err,
			}
		}
	}

	for i := range steps {
		step := &steps[i]

		if state.IsCancelled() {
			logger.Info("task execution cancelled", "executed_steps", i, "reason", state.CancelReason())
			return outcome{status: domain.TaskStatusCancelled, note: stopReason}
		}
		if ctx.Err() != nil {
			logger.Warn("task execution interrupted", "executed_steps", i, "error", ctx.Err())
			return outcome{status: domain.TaskStatusCancelled, note: fmt.Sprintf("execution interrupted: %v", ctx.Err())}
		}
		if o.taskTimeout > 0 && time.Since(startedAt) > o.taskTimeout {
			logger.Warn("task timeout exceeded", "executed_steps", i, "timeout", o.taskTimeout)
			succeeded, failed := state.Counts()
			return outcome{
				status: domain.TaskStatusFailed,
				note: fmt.Sprintf("task timeout %s exceeded after %d/%d steps (%d failed)",
					o.taskTimeout, succeeded+failed, len(steps), failed),
			}
		}

		state.MarkStepStarted(i, step)

		res, err := o.runStep(ctx, step, sessionID, vars)
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
			logger.Warn("step failed, continuing",
				"step_id", step.ID,
				"step_order", step.StepOrder,
				"error", err,
			)
		}
		state.MarkStepFinished(so)

		o.emit(ctx, domain.Event{
			Type:        domain.EventStepFinished,
			ExecutionID: state.ExecutionID,
			TaskID:      task.ID,
			SessionID:   sessionID,
			Data: map[string]any{
				"step_index":  i,
				"total_steps": len(steps),
				"step_id":     step.ID,
				"step_name":   step.StepName,
				"action":      string(step.ActionType),
				"success":     so.Success,
				"error":       so.Error,
			},
			Timestamp: time.Now(),
		})
	}

	succeeded, failed := state.Counts()
	status, note := o.policy.Decide(succeeded, failed)
	return outcome{status: status, note: note}
}

// openTaskURL открывает стартовый адрес задачи с подставленными параметрами.
func (o *Orchestrator) openTaskURL(sessionID, rawURL string, vars *render.Context) error {
	url, err := render.String(rawURL, vars)
	if err != nil {
		return fmt.Errorf("task url: %w", err)
	}
	page, err := o.sessions.Page(sessionID)
	if err != nil {
		return err
	}
	_, err = page.Goto(url, domain.DefaultStepTimeout*time.Second)
	return err
}

// runStep подставляет значения в шаг и выполняет его. Данные успешного
// шага становятся доступны следующим шагам по имени.
func (o *Orchestrator) runStep(ctx context.Context, step *domain.AutomationStep, sessionID string, vars *render.Context) (*executor.ActionResult, error) {
	rendered, err := render.Step(*step, vars)
	if err != nil {
		return nil, err
	}
	res, err := o.runner.Execute(ctx, &rendered, sessionID)
	if err == nil && res != nil && res.Success {
		vars.AddStep(step.StepName, res.Data)
	}
	return res, err
}

// finish сохраняет финальный статус, счётчики и результат задачи.
func (o *Orchestrator) finish(ctx context.Context, task *domain.Task, state *RunState, res outcome) {
	logger := telemetry.WithExecutionID(telemetry.WithTaskID(o.logger, task.ID), state.ExecutionID)
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	unlock := o.lockTask(task.ID)

	succeeded, failed := state.Counts()
	if state.IsCancelled() && !res.infra {
		res.status = domain.TaskStatusCancelled
		res.note = stopReason
	}

	if !res.infra {
		task.RecordRun(succeeded, failed)
	}

	outcomes := state.Outcomes()
	task.Result = map[string]any{
		"execution_id":    state.ExecutionID,
		"total_steps":     state.Record().TotalSteps,
		"executed_steps":  len(outcomes),
		"succeeded_steps": succeeded,
		"failed_steps":    failed,
		"steps":           outcomes,
	}
	task.ErrorMessage = ""
	task.MarkFinished(res.status, res.note)

	if err := o.tasks.UpdateExecution(storeCtx, task); err != nil {
		logger.Error("failed to persist task outcome", "status", res.status, "error", err)
	}

	execStatus := domain.ExecutionStatusCompleted
	switch res.status {
	case domain.TaskStatusFailed:
		execStatus = domain.ExecutionStatusFailed
	case domain.TaskStatusCancelled:
		execStatus = domain.ExecutionStatusStopped
	}
	record := state.Finish(execStatus, res.note)
	o.removeActive(state, record)
	unlock()

	telemetry.ExecutionsRunning.Dec()
	telemetry.ExecutionsTotal.WithLabelValues(string(domain.ExecutionKindTask), string(res.status)).Inc()

	level := domain.LogLevelInfo
	if res.status == domain.TaskStatusFailed {
		level = domain.LogLevelError
	}
	msg := fmt.Sprintf("execution finished: %s", res.status)
	if res.note != "" {
		msg += ": " + res.note
	}
	o.appendLog(ctx, task.ID, level, msg)

	logger.Info("task execution finished",
		"status", res.status,
		"succeeded", succeeded,
		"failed", failed,
		"note", res.note,
	)

	o.emit(ctx, domain.Event{
		Type:        domain.EventExecutionFinished,
		ExecutionID: state.ExecutionID,
		TaskID:      task.ID,
		SessionID:   state.SessionID,
		Data: map[string]any{
			"status":          string(res.status),
			"succeeded_steps": succeeded,
			"failed_steps":    failed,
			"note":            res.note,
		},
		Timestamp: time.Now(),
	})
}
