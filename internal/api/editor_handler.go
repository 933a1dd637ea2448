package api

import (
	"net/http"

	"github.com/shaiso/Webmata/internal/editor"
)

// CreateEditorSession создаёт сессию визуального редактора.
// POST /api/v1/editor/sessions
func (h *Handler) CreateEditorSession(w http.ResponseWriter, r *http.Request) {
	var req editor.CreateSessionInput
	if err := decodeJSON(r, &req, true); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	session, err := h.editor.CreateSession(r.Context(), req)
	if HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, session)
}

// ListEditorSessions возвращает активные сессии редактора.
// GET /api/v1/editor/sessions
func (h *Handler) ListEditorSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.editor.ListActive(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, sessions, len(sessions))
}

// GetEditorSession возвращает сессию редактора.
// GET /api/v1/editor/sessions/{id}
func (h *Handler) GetEditorSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.editor.GetSession(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	Success(w, session)
}

// UpdateEditorSession меняет задачу или текущий адрес сессии.
// PUT /api/v1/editor/sessions/{id}
func (h *Handler) UpdateEditorSession(w http.ResponseWriter, r *http.Request) {
	var req editor.UpdateSessionInput
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	session, err := h.editor.UpdateSession(r.Context(), r.PathValue("id"), req)
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	Success(w, session)
}

// CloseEditorSession удаляет сессию редактора.
// DELETE /api/v1/editor/sessions/{id}
func (h *Handler) CloseEditorSession(w http.ResponseWriter, r *http.Request) {
	err := h.editor.CloseSession(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	NoContent(w)
}

// RecordSteps сохраняет пачку записанных шагов.
// POST /api/v1/editor/record-steps
func (h *Handler) RecordSteps(w http.ResponseWriter, r *http.Request) {
	var req RecordStepsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.SessionID == "" {
		BadRequest(w, "session_id is required")
		return
	}

	res, err := h.editor.RecordSteps(r.Context(), req.SessionID, req.Steps)
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	Success(w, res)
}

// GetRecordings возвращает записанные шаги.
// GET /api/v1/editor/recordings/{id}
func (h *Handler) GetRecordings(w http.ResponseWriter, r *http.Request) {
	steps, err := h.editor.Recordings(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	List(w, steps, len(steps))
}

// ClearRecordings очищает записанные шаги.
// DELETE /api/v1/editor/recordings/{id}
func (h *Handler) ClearRecordings(w http.ResponseWriter, r *http.Request) {
	err := h.editor.ClearRecordings(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	NoContent(w)
}

// ConvertRecording создаёт шаги задачи из записи.
// POST /api/v1/editor/sessions/{id}/convert
func (h *Handler) ConvertRecording(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := decodeJSON(r, &req, false); err != nil || req.TaskID <= 0 {
		BadRequest(w, "task_id is required")
		return
	}

	if _, err := h.taskRepo.Get(r.Context(), req.TaskID); HandleError(w, h.logger, err, "task not found") {
		return
	}

	sessionID := r.PathValue("id")
	steps, err := h.editor.Convert(r.Context(), sessionID, req.TaskID)
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}

	Created(w, ConvertResponse{
		SessionID: sessionID,
		TaskID:    req.TaskID,
		StepCount: len(steps),
		Steps:     steps,
	})
}

// ExportRecording выгружает запись.
// GET /api/v1/editor/sessions/{id}/export?format=json|automation
func (h *Handler) ExportRecording(w http.ResponseWriter, r *http.Request) {
	format := editor.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = editor.FormatJSON
	}

	export, err := h.editor.Export(r.Context(), r.PathValue("id"), format)
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	Success(w, export)
}

// RecordingAnalytics возвращает сводку по записи.
// GET /api/v1/editor/sessions/{id}/analytics
func (h *Handler) RecordingAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.editor.Analytics(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	Success(w, a)
}

// OptimizeRecording сокращает запись, склеивая ожидания и прокрутки.
// POST /api/v1/editor/sessions/{id}/optimize
func (h *Handler) OptimizeRecording(w http.ResponseWriter, r *http.Request) {
	res, err := h.editor.Optimize(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	Success(w, res)
}

// StartRecording включает запись.
// POST /api/v1/editor/sessions/{id}/recording/start
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req StartRecordingRequest
	if err := decodeJSON(r, &req, true); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	rec, err := h.editor.StartRecording(r.Context(), r.PathValue("id"), req.TargetURL)
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	Success(w, rec)
}

// StopRecording выключает запись.
// POST /api/v1/editor/sessions/{id}/recording/stop
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	summary, err := h.editor.StopRecording(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "editor session not found") {
		return
	}
	Success(w, summary)
}

// ValidateSelector проверяет синтаксис селектора.
// POST /api/v1/editor/validate-selector
func (h *Handler) ValidateSelector(w http.ResponseWriter, r *http.Request) {
	var req ValidateSelectorRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	Success(w, editor.ValidateSelector(req.Selector, req.Type))
}

// Snapshot снимает страницу в одноразовой сессии.
// POST /api/v1/editor/snapshot
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	snap, err := h.editor.Snapshot(r.Context(), req.SessionID, req.URL)
	if HandleError(w, h.logger, err, "") {
		return
	}
	Success(w, snap)
}

// EditorWebSocket открывает живой канал сессии редактора.
// GET /api/v1/editor/ws/{session_id}, GET /ws/{session_id}
func (h *Handler) EditorWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.Serve(w, r, r.PathValue("session_id")); err != nil {
		h.logger.Debug("websocket closed", "error", err)
	}
}
