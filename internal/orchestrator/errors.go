package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrTaskNotFound — задача не найдена в БД.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskAlreadyRunning — у задачи уже есть выполнение.
	ErrTaskAlreadyRunning = errors.New("task already running")

	// ErrNoStepsConfigured — у задачи нет шагов.
	ErrNoStepsConfigured = errors.New("no steps configured")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")

	// ErrExecutionNotFound — выполнение с таким идентификатором неизвестно.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrEmptyBatch — в batch нет задач.
	ErrEmptyBatch = errors.New("batch has no tasks")
)
