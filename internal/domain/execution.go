package domain

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionKind — вид выполнения.
type ExecutionKind string

const (
	ExecutionKindTask    ExecutionKind = "task"
	ExecutionKindBatch   ExecutionKind = "batch"
	ExecutionKindPreview ExecutionKind = "preview"
)

// ExecutionRecord — запись о выполнении задачи или batch.
//
// Живёт только в памяти процесса. Одиночная запись удаляется по окончании
// выполнения, batch — после чтения статуса или уборки janitor-ом.
type ExecutionRecord struct {
	// ExecutionID — идентификатор выполнения.
	ExecutionID string `json:"execution_id"`

	// Kind — task, batch или preview.
	Kind ExecutionKind `json:"kind"`

	// TaskIDs — задачи, входящие в выполнение.
	TaskIDs []int64 `json:"task_ids"`

	// Status — текущий статус.
	Status ExecutionStatus `json:"status"`

	// CurrentStep — индекс выполняемого шага (с нуля).
	CurrentStep int `json:"current_step"`

	// CurrentStepName — имя выполняемого шага.
	CurrentStepName string `json:"current_step_name,omitempty"`

	// TotalSteps — общее количество шагов.
	TotalSteps int `json:"total_steps"`

	// Для batch.
	TotalTasks     int `json:"total_tasks,omitempty"`
	CompletedTasks int `json:"completed_tasks,omitempty"`
	FailedTasks    int `json:"failed_tasks,omitempty"`

	// Outcomes — результаты шагов (для preview).
	Outcomes []StepOutcome `json:"outcomes,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Clone возвращает копию записи, безопасную для чтения вне блокировки.
func (r *ExecutionRecord) Clone() ExecutionRecord {
	out := *r
	out.TaskIDs = append([]int64(nil), r.TaskIDs...)
	out.Outcomes = append([]StepOutcome(nil), r.Outcomes...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// IsFinished возвращает true, если выполнение завершено.
func (r *ExecutionRecord) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkFinished переводит запись в финальный статус.
func (r *ExecutionRecord) MarkFinished(status ExecutionStatus, errMsg string) {
	now := time.Now()
	r.Status = status
	r.CompletedAt = &now
	if errMsg != "" {
		r.Error = errMsg
	}
}

// StepOutcome — итог выполнения одного шага.
type StepOutcome struct {
	StepID    int64          `json:"step_id"`
	StepName  string         `json:"step_name"`
	StepOrder int            `json:"step_order"`
	Action    ActionKind     `json:"action"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewExecutionID формирует идентификатор одиночного выполнения: exec_{taskID}_{unix}.
func NewExecutionID(taskID int64, now time.Time) string {
	return fmt.Sprintf("exec_%d_%d", taskID, now.Unix())
}

// NewBatchID формирует идентификатор batch: batch_{unix}_{8 hex}.
func NewBatchID(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("batch_%d_%s", now.Unix(), hex.EncodeToString(u[:4]))
}

// BatchMemberID формирует идентификатор выполнения задачи внутри batch.
func BatchMemberID(batchID string, taskID int64) string {
	return fmt.Sprintf("%s_task_%d", batchID, taskID)
}

// NewPreviewID формирует идентификатор предпросмотра: preview_{taskID}_{unix}.
func NewPreviewID(taskID int64, now time.Time) string {
	return fmt.Sprintf("preview_%d_%d", taskID, now.Unix())
}

// ExecutionLog — запись журнала выполнения задачи.
type ExecutionLog struct {
	ID             int64          `json:"id"`
	TaskID         int64          `json:"task_id"`
	StepID         *int64         `json:"step_id,omitempty"`
	StepName       string         `json:"step_name,omitempty"`
	Level          LogLevel       `json:"level"`
	Message        string         `json:"message"`
	ScreenshotPath string         `json:"screenshot_path,omitempty"`
	ErrorDetails   map[string]any `json:"error_details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
