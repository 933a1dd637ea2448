package api

import (
	"net/http"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/orchestrator"
	"github.com/shaiso/Webmata/internal/repo"
)

// ListTasks возвращает список задач.
// GET /api/v1/tasks?status=...&offset=...&limit=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := repo.TaskFilter{
		Page: repo.Page{
			Offset: queryInt(r, "offset", 0),
			Limit:  queryInt(r, "limit", repo.DefaultLimit),
		},
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.TaskStatus(status)
		if !filter.Status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
	}

	tasks, err := h.taskRepo.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, tasks, len(tasks))
}

// CreateTask создаёт задачу.
// POST /api/v1/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if msg := req.Validate(); msg != "" {
		BadRequest(w, msg)
		return
	}

	task := req.ToDomain()
	if err := h.taskRepo.Create(r.Context(), task); err != nil {
		HandleError(w, h.logger, err, "")
		return
	}

	h.logger.Info("task created", "task_id", task.ID, "name", task.Name)
	Created(w, task)
}

// GetTask возвращает задачу по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.taskRepo.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}
	Success(w, task)
}

// UpdateTask обновляет редактируемые поля задачи.
// PUT /api/v1/tasks/{id}
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid task id")
		return
	}

	var req UpdateTaskRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task, err := h.taskRepo.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	req.Apply(task)
	if msg := (CreateTaskRequest{Name: task.Name, URL: task.URL}).Validate(); msg != "" {
		BadRequest(w, msg)
		return
	}

	if err := h.taskRepo.Update(r.Context(), task); HandleError(w, h.logger, err, "task not found") {
		return
	}
	Success(w, task)
}

// DeleteTask удаляет задачу вместе с шагами и журналом.
// Выполняющуюся задачу удалить нельзя.
// DELETE /api/v1/tasks/{id}
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid task id")
		return
	}

	if err := h.taskRepo.Delete(r.Context(), id); HandleError(w, h.logger, err, "task not found") {
		return
	}

	h.logger.Info("task deleted", "task_id", id)
	NoContent(w)
}

// TaskStats возвращает сводную статистику.
// GET /api/v1/tasks/stats/overview
func (h *Handler) TaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.taskRepo.Stats(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	Success(w, stats)
}

// TaskLogs возвращает журнал выполнения задачи.
// GET /api/v1/tasks/{id}/logs?level=...&offset=...&limit=...
func (h *Handler) TaskLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid task id")
		return
	}

	page := repo.Page{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", repo.DefaultLimit),
	}
	level := domain.LogLevel(r.URL.Query().Get("level"))

	logs, err := h.logRepo.ListByTask(r.Context(), id, level, page)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, logs, len(logs))
}

// ExecuteTask запускает задачу в фоне.
// POST /api/v1/tasks/{id}/execute
func (h *Handler) ExecuteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid task id")
		return
	}

	var req ExecuteTaskRequest
	if err := decodeJSON(r, &req, true); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	executionID, err := h.executions.Execute(r.Context(), id, orchestrator.RunOptions{
		ForceRestart: req.ForceRestart,
	})
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: ExecutionResponse{
		ExecutionID: executionID,
		Status:      string(domain.ExecutionStatusRunning),
		TotalTasks:  1,
		Message:     "task execution started",
	}})
}

// BatchExecute запускает несколько задач.
// POST /api/v1/tasks/batch/execute
func (h *Handler) BatchExecute(w http.ResponseWriter, r *http.Request) {
	var req BatchExecuteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	executionID, err := h.executions.ExecuteBatch(r.Context(), req.TaskIDs)
	if HandleError(w, h.logger, err, "") {
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: ExecutionResponse{
		ExecutionID: executionID,
		Status:      string(domain.ExecutionStatusRunning),
		TotalTasks:  len(req.TaskIDs),
		Message:     "batch execution started",
	}})
}

// GetTaskStatus возвращает статус и прогресс задачи.
// GET /api/v1/tasks/{id}/status
func (h *Handler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid task id")
		return
	}

	view, err := h.executions.TaskStatus(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}
	Success(w, view)
}

// StopTask останавливает задачу.
// POST /api/v1/tasks/{id}/stop
func (h *Handler) StopTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid task id")
		return
	}

	stopped, err := h.executions.StopTask(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}
	if !stopped {
		InvalidState(w, "task is not running")
		return
	}
	Success(w, StopResponse{Stopped: true, Message: "task stopped"})
}
