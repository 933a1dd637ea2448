package domain

import (
	"math"
	"time"
)

// Task — задача автоматизации браузера.
//
// Задача описывает целевой URL и упорядоченный набор шагов (AutomationStep).
// Статусами управляет Orchestrator, CRUD — через репозиторий.
type Task struct {
	// ID — идентификатор задачи.
	ID int64 `json:"id"`

	// Name — имя задачи.
	Name string `json:"name"`

	// Description — описание (опционально).
	Description string `json:"description,omitempty"`

	// URL — целевая страница. Открывается перед первым шагом.
	URL string `json:"url"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Priority — приоритет задачи (больше — важнее).
	Priority int `json:"priority"`

	// Parameters — произвольные параметры задачи.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Result — результат последнего выполнения.
	Result map[string]any `json:"result,omitempty"`

	// ErrorMessage — текст последней ошибки или пометка о частичном сбое.
	ErrorMessage string `json:"error_message,omitempty"`

	// Счётчики — монотонно растут, обновляются один раз за выполнение.
	ExecutionCount int `json:"execution_count"`
	SuccessCount   int `json:"success_count"`
	FailureCount   int `json:"failure_count"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsFinished возвращает true, если задача в финальном статусе.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// IsRunning возвращает true, если задача выполняется.
func (t *Task) IsRunning() bool {
	return t.Status == TaskStatusRunning
}

// CanStop проверяет, можно ли остановить задачу.
func (t *Task) CanStop() bool {
	return t.Status == TaskStatusRunning || t.Status == TaskStatusPending
}

// MarkRunning переводит задачу в статус running.
// Ошибка прошлого выполнения и время завершения сбрасываются.
func (t *Task) MarkRunning() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.CompletedAt = nil
	t.ErrorMessage = ""
	t.UpdatedAt = &now
}

// MarkFinished переводит задачу в финальный статус с пометкой.
func (t *Task) MarkFinished(status TaskStatus, note string) {
	now := time.Now()
	t.Status = status
	t.CompletedAt = &now
	t.UpdatedAt = &now
	if note != "" {
		t.ErrorMessage = note
	}
}

// MarkFailed переводит задачу в статус failed.
func (t *Task) MarkFailed(err string) {
	t.MarkFinished(TaskStatusFailed, err)
}

// MarkCancelled переводит задачу в статус cancelled.
func (t *Task) MarkCancelled(reason string) {
	t.MarkFinished(TaskStatusCancelled, reason)
}

// RecordRun обновляет счётчики по итогам одного выполнения.
func (t *Task) RecordRun(succeeded, failed int) {
	t.ExecutionCount++
	t.SuccessCount += succeeded
	t.FailureCount += failed
}

// Duration возвращает продолжительность последнего выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// EstimatedStepDuration — оценочная длительность одного шага для расчёта прогресса.
const EstimatedStepDuration = 30 * time.Second

// maxEstimatedProgress — потолок оценочного прогресса для выполняющейся задачи.
const maxEstimatedProgress = 90.0

// Progress оценивает прогресс выполнения в процентах.
//
//	pending, failed, cancelled → 0
//	completed                  → 100
//	running                    → elapsed / (30s × шагов), не больше 90
func (t *Task) Progress(now time.Time, totalSteps int) float64 {
	switch t.Status {
	case TaskStatusCompleted:
		return 100
	case TaskStatusRunning:
	default:
		return 0
	}

	if totalSteps <= 0 || t.StartedAt == nil {
		return 0
	}

	estimated := EstimatedStepDuration * time.Duration(totalSteps)
	progress := float64(now.Sub(*t.StartedAt)) / float64(estimated) * 100
	if progress < 0 {
		return 0
	}
	return min(progress, maxEstimatedProgress)
}

// EstimatedCompletion возвращает оценку времени завершения по прогрессу.
// Возвращает nil, если оценить нельзя.
func (t *Task) EstimatedCompletion(now time.Time, progress float64) *time.Time {
	if t.Status != TaskStatusRunning || t.StartedAt == nil || progress <= 0 {
		return nil
	}
	elapsed := now.Sub(*t.StartedAt)
	total := time.Duration(float64(elapsed) / (progress / 100))
	eta := t.StartedAt.Add(total)
	return &eta
}

// TaskStats — сводная статистика по задачам.
type TaskStats struct {
	TotalTasks      int                `json:"total_tasks"`
	StatusBreakdown map[TaskStatus]int `json:"status_breakdown"`
	RecentTasks7d   int                `json:"recent_tasks_7days"`
	SuccessRate     float64            `json:"success_rate"`
	ActiveTasks     int                `json:"active_tasks"`
}

// SuccessRate возвращает долю завершённых задач в процентах, округлённую до сотых.
func SuccessRate(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*10000) / 100
}
