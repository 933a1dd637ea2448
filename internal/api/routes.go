package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		CORS(h.origins),
	)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	// Tasks
	handle("GET /api/v1/tasks", h.ListTasks)
	handle("POST /api/v1/tasks", h.CreateTask)
	handle("GET /api/v1/tasks/stats/overview", h.TaskStats)
	handle("POST /api/v1/tasks/batch/execute", h.BatchExecute)
	handle("GET /api/v1/tasks/{id}", h.GetTask)
	handle("PUT /api/v1/tasks/{id}", h.UpdateTask)
	handle("DELETE /api/v1/tasks/{id}", h.DeleteTask)
	handle("POST /api/v1/tasks/{id}/execute", h.ExecuteTask)
	handle("GET /api/v1/tasks/{id}/status", h.GetTaskStatus)
	handle("POST /api/v1/tasks/{id}/stop", h.StopTask)
	handle("GET /api/v1/tasks/{id}/logs", h.TaskLogs)

	// Steps
	handle("POST /api/v1/automation/steps", h.CreateStep)
	handle("GET /api/v1/automation/steps/task/{task_id}", h.ListStepsForTask)
	handle("PUT /api/v1/automation/steps/{id}", h.UpdateStep)
	handle("DELETE /api/v1/automation/steps/{id}", h.DeleteStep)

	// Preview
	handle("POST /api/v1/automation/preview", h.PreviewTask)
	handle("GET /api/v1/automation/preview/{id}", h.GetPreview)

	// Browser sessions
	handle("GET /api/v1/automation/sessions", h.ListActiveSessions)
	handle("DELETE /api/v1/automation/sessions/{session_id}", h.CloseSession)
	handle("POST /api/v1/automation/browser/launch", h.LaunchBrowser)
	handle("POST /api/v1/automation/browser/{session_id}/navigate", h.Navigate)
	handle("GET /api/v1/automation/browser/{session_id}/screenshot", h.Screenshot)
	handle("POST /api/v1/automation/validate/xpath", h.ValidateXPath)

	// Executions
	handle("GET /api/v1/executions", h.ListExecutions)
	handle("GET /api/v1/executions/{id}", h.GetExecution)
	handle("POST /api/v1/executions/{id}/stop", h.StopExecution)

	// Editor
	handle("POST /api/v1/editor/sessions", h.CreateEditorSession)
	handle("GET /api/v1/editor/sessions", h.ListEditorSessions)
	handle("GET /api/v1/editor/sessions/{id}", h.GetEditorSession)
	handle("PUT /api/v1/editor/sessions/{id}", h.UpdateEditorSession)
	handle("DELETE /api/v1/editor/sessions/{id}", h.CloseEditorSession)
	handle("POST /api/v1/editor/sessions/{id}/convert", h.ConvertRecording)
	handle("GET /api/v1/editor/sessions/{id}/export", h.ExportRecording)
	handle("GET /api/v1/editor/sessions/{id}/analytics", h.RecordingAnalytics)
	handle("POST /api/v1/editor/sessions/{id}/optimize", h.OptimizeRecording)
	handle("POST /api/v1/editor/sessions/{id}/recording/start", h.StartRecording)
	handle("POST /api/v1/editor/sessions/{id}/recording/stop", h.StopRecording)
	handle("POST /api/v1/editor/record-steps", h.RecordSteps)
	handle("GET /api/v1/editor/recordings/{id}", h.GetRecordings)
	handle("DELETE /api/v1/editor/recordings/{id}", h.ClearRecordings)
	handle("POST /api/v1/editor/validate-selector", h.ValidateSelector)
	handle("POST /api/v1/editor/snapshot", h.Snapshot)

	// CORS preflight
	handle("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) { NoContent(w) })

	// WebSocket
	handle("GET /api/v1/editor/ws/{session_id}", h.EditorWebSocket)
	handle("GET /ws/{session_id}", h.EditorWebSocket)
}
