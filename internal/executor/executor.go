package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/telemetry"
)

// logTimeout — таймаут записи в журнал выполнения.
const logTimeout = 5 * time.Second

// Sessions — источник страниц по идентификатору сессии.
// Реализуется *browser.Registry.
type Sessions interface {
	Page(sessionID string) (browser.Page, error)
}

// LogSink — журнал выполнения (таблица execution_logs).
type LogSink interface {
	AppendLog(ctx context.Context, entry *domain.ExecutionLog) error
}

// ActionResult — результат выполнения шага.
type ActionResult struct {
	// Action — тип выполненного действия.
	Action domain.ActionKind `json:"action"`

	// Inputs — разрешённые входные данные (селектор, текст, URL, таймаут).
	Inputs map[string]any `json:"inputs"`

	// Success — true, если действие выполнено.
	Success bool `json:"success"`

	// Data — данные результата (final_url, screenshot_size и т.п.).
	Data map[string]any `json:"data,omitempty"`

	// Error — текст ошибки, если шаг не удался.
	Error string `json:"error,omitempty"`
}

// Config — конфигурация Executor.
type Config struct {
	// Sessions — реестр сессий. Обязателен.
	Sessions Sessions

	// Logs — журнал выполнения (опционально).
	Logs LogSink

	Logger *slog.Logger
}

// Executor выполняет шаги автоматизации.
type Executor struct {
	sessions Sessions
	logs     LogSink
	logger   *slog.Logger
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		sessions: cfg.Sessions,
		logs:     cfg.Logs,
		logger:   cfg.Logger,
	}
}

// Execute выполняет шаг в сессии sessionID.
func (e *Executor) Execute(ctx context.Context, step *domain.AutomationStep, sessionID string) (*ActionResult, error) {
	start := time.Now()
	logger := telemetry.WithSessionID(telemetry.WithTaskID(e.logger, step.TaskID), sessionID).With(
		"step_id", step.ID,
		"action", step.ActionType,
	)

	result := &ActionResult{
		Action: step.ActionType,
		Inputs: inputs(step),
	}

	e.appendLog(ctx, step, domain.LogLevelInfo, fmt.Sprintf("step started: %s", step.StepName), nil)
	logger.Debug("step started", "step_name", step.StepName)

	data, err := e.dispatch(ctx, step, sessionID)

	telemetry.StepDuration.WithLabelValues(string(step.ActionType)).Observe(time.Since(start).Seconds())
	telemetry.StepsTotal.WithLabelValues(string(step.ActionType), telemetry.Result(err == nil)).Inc()

	if err != nil {
		result.Error = err.Error()
		e.appendLog(ctx, step, domain.LogLevelError,
			fmt.Sprintf("step failed: %s: %s", step.StepName, err),
			map[string]any{
				"error":  err.Error(),
				"action": string(step.ActionType),
				"inputs": result.Inputs,
			},
		)
		logger.Warn("step failed", "step_name", step.StepName, "error", err)
		return result, err
	}

	result.Success = true
	result.Data = data

	e.appendLog(ctx, step, domain.LogLevelInfo, fmt.Sprintf("step succeeded: %s", step.StepName), data)
	logger.Debug("step succeeded",
		"step_name", step.StepName,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if wait := step.PostWait(); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}

	return result, nil
}

// dispatch выполняет действие по типу шага.
func (e *Executor) dispatch(ctx context.Context, step *domain.AutomationStep, sessionID string) (map[string]any, error) {
	// wait не требует страницы, но сессия всё равно должна существовать
	page, err := e.sessions.Page(sessionID)
	if err != nil {
		if errors.Is(err, browser.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, err)
	}

	timeout := step.StepTimeout()

	switch step.ActionType {
	case domain.ActionClick:
		return click(page, step, timeout)
	case domain.ActionHover:
		return hover(page, step, timeout)
	case domain.ActionType:
		return typeText(page, step, timeout)
	case domain.ActionSelect:
		return selectOption(page, step, timeout)
	case domain.ActionScroll:
		return scroll(page, step)
	case domain.ActionWait:
		return wait(ctx, step)
	case domain.ActionNavigate:
		return navigate(page, step, timeout)
	case domain.ActionScreenshot:
		return screenshot(page)
	case domain.ActionDragDrop:
		return dragDrop(page, step, timeout)
	case domain.ActionUpload:
		return upload(page, step, timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, step.ActionType)
	}
}

// appendLog пишет запись в журнал. Ошибки журнала не влияют на шаг.
func (e *Executor) appendLog(ctx context.Context, step *domain.AutomationStep, level domain.LogLevel, msg string, details map[string]any) {
	if e.logs == nil {
		return
	}

	entry := &domain.ExecutionLog{
		TaskID:    step.TaskID,
		StepName:  step.StepName,
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
	}
	if step.ID != 0 {
		id := step.ID
		entry.StepID = &id
	}
	if details != nil {
		entry.ErrorDetails = details
	}

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logTimeout)
	defer cancel()

	if err := e.logs.AppendLog(logCtx, entry); err != nil {
		e.logger.Warn("failed to append execution log",
			"task_id", step.TaskID,
			"step_id", step.ID,
			"error", err,
		)
	}
}

// inputs собирает входные данные шага для результата.
func inputs(step *domain.AutomationStep) map[string]any {
	in := map[string]any{
		"timeout": int(step.StepTimeout().Seconds()),
	}
	if step.TargetSelector != "" {
		in["selector"] = step.TargetSelector
	}
	if step.TargetText != "" {
		in["text"] = step.TargetText
	}
	if step.TargetURL != "" {
		in["url"] = step.TargetURL
	}
	if len(step.Parameters) > 0 {
		in["parameters"] = step.Parameters
	}
	return in
}
