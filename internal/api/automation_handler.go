package api

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/editor"
)

// CreateStep добавляет шаг к задаче.
// POST /api/v1/automation/steps
func (h *Handler) CreateStep(w http.ResponseWriter, r *http.Request) {
	var req CreateStepRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if msg := req.Validate(); msg != "" {
		BadRequest(w, msg)
		return
	}

	if _, err := h.taskRepo.Get(r.Context(), req.TaskID); HandleError(w, h.logger, err, "task not found") {
		return
	}

	step := req.ToDomain()
	if err := h.stepRepo.Create(r.Context(), step); HandleError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("step created",
		"task_id", step.TaskID,
		"step_id", step.ID,
		"action", step.ActionType,
	)
	Created(w, step)
}

// ListStepsForTask возвращает шаги задачи по порядку.
// GET /api/v1/automation/steps/task/{task_id}
func (h *Handler) ListStepsForTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathInt64(r, "task_id")
	if !ok {
		BadRequest(w, "invalid task id")
		return
	}

	steps, err := h.stepRepo.ListByTask(r.Context(), taskID)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, steps, len(steps))
}

// UpdateStep обновляет шаг.
// PUT /api/v1/automation/steps/{id}
func (h *Handler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid step id")
		return
	}

	var req UpdateStepRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	step, err := h.stepRepo.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "step not found") {
		return
	}
	if msg := req.Apply(step); msg != "" {
		BadRequest(w, msg)
		return
	}

	if err := h.stepRepo.Update(r.Context(), step); HandleError(w, h.logger, err, "step not found") {
		return
	}
	Success(w, step)
}

// DeleteStep удаляет шаг.
// DELETE /api/v1/automation/steps/{id}
func (h *Handler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		BadRequest(w, "invalid step id")
		return
	}

	if err := h.stepRepo.Delete(r.Context(), id); HandleError(w, h.logger, err, "step not found") {
		return
	}
	NoContent(w)
}

// PreviewTask запускает предпросмотр задачи.
// POST /api/v1/automation/preview
func (h *Handler) PreviewTask(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(r, &req, false); err != nil || req.TaskID <= 0 {
		BadRequest(w, "task_id is required")
		return
	}

	previewID, err := h.executions.Preview(r.Context(), req.TaskID)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: map[string]any{
		"preview_id": previewID,
		"status":     domain.ExecutionStatusRunning,
	}})
}

// GetPreview возвращает результат предпросмотра.
// GET /api/v1/automation/preview/{id}
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.executions.PreviewResult(r.PathValue("id"))
	if !ok {
		NotFound(w, "preview not found")
		return
	}
	Success(w, rec)
}

// ListActiveSessions возвращает открытые браузерные сессии.
// GET /api/v1/automation/sessions
func (h *Handler) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.browsers.List()
	List(w, sessions, len(sessions))
}

// CloseSession закрывает браузерную сессию.
// DELETE /api/v1/automation/sessions/{session_id}
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if !h.browsers.Close(sessionID) {
		NotFound(w, "session not found")
		return
	}
	NoContent(w)
}

// LaunchBrowser открывает браузерную сессию.
// POST /api/v1/automation/browser/launch
func (h *Handler) LaunchBrowser(w http.ResponseWriter, r *http.Request) {
	var req LaunchBrowserRequest
	if err := decodeJSON(r, &req, true); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	cfg, err := req.ToDomain()
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	res, err := h.browsers.Launch(r.Context(), cfg)
	if HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, res)
}

// Navigate открывает адрес в сессии.
// POST /api/v1/automation/browser/{session_id}/navigate
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		BadRequest(w, "url is required")
		return
	}

	page, err := h.browsers.Page(r.PathValue("session_id"))
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	timeout := time.Duration(req.Timeout) * time.Second
	if req.Timeout <= 0 {
		timeout = domain.DefaultStepTimeout * time.Second
	}

	status, err := page.Goto(req.URL, timeout)
	if err != nil {
		h.logger.Warn("navigation failed", "url", req.URL, "error", err)
		Error(w, http.StatusBadGateway, ErrCodeUpstreamFailed, "navigation failed: "+err.Error())
		return
	}

	title, err := page.Title()
	if err != nil {
		h.logger.Warn("failed to read page title", "url", req.URL, "error", err)
	}

	Success(w, NavigateResponse{
		URL:        req.URL,
		Title:      title,
		FinalURL:   page.URL(),
		StatusCode: status,
	})
}

// Screenshot снимает видимую область страницы.
// GET /api/v1/automation/browser/{session_id}/screenshot
func (h *Handler) Screenshot(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	page, err := h.browsers.Page(sessionID)
	if HandleError(w, h.logger, err, "session not found") {
		return
	}

	shot, err := page.Screenshot(false)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, ScreenshotResponse{
		SessionID:  sessionID,
		Screenshot: base64.StdEncoding.EncodeToString(shot),
		Format:     "png",
	})
}

// ValidateXPath разбирает XPath, не открывая страницу.
// POST /api/v1/automation/validate/xpath
func (h *Handler) ValidateXPath(w http.ResponseWriter, r *http.Request) {
	var req ValidateXPathRequest
	if err := decodeJSON(r, &req, false); err != nil || req.XPath == "" {
		BadRequest(w, "xpath is required")
		return
	}
	Success(w, editor.ValidateXPath(req.XPath))
}
