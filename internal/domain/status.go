package domain

// TaskStatus — статус задачи автоматизации.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	        (или)     → cancelled (из pending или running)
type TaskStatus string

const (
	// TaskStatusPending — задача создана, ещё не запускалась.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning — задача выполняется.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCompleted — выполнение завершено (в том числе частично успешно).
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed — выполнение завершилось ошибкой.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled — выполнение остановлено пользователем.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// ExecutionStatus — статус записи о выполнении (одиночном или batch).
//
//	running → completed
//	        ↘ failed
//	        ↘ stopped
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
)

// IsTerminal возвращает true, если выполнение закончено.
func (s ExecutionStatus) IsTerminal() bool {
	return s != ExecutionStatusRunning
}

// LogLevel — уровень записи в журнале выполнения.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)
