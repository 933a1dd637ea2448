package api

import "net/http"

// defaultHistoryLimit — размер списка выполнений по умолчанию.
const defaultHistoryLimit = 50

// ListExecutions возвращает выполнения, новые первыми.
// GET /api/v1/executions?limit=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	records := h.executions.History(queryInt(r, "limit", defaultHistoryLimit))
	List(w, records, len(records))
}

// GetExecution возвращает запись о выполнении.
// Завершённый batch после чтения забывается.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.executions.ExecutionStatus(r.PathValue("id"))
	if !ok {
		NotFound(w, "execution not found")
		return
	}
	Success(w, rec)
}

// StopExecution останавливает выполнение, batch или предпросмотр.
// POST /api/v1/executions/{id}/stop
func (h *Handler) StopExecution(w http.ResponseWriter, r *http.Request) {
	if !h.executions.StopExecution(r.PathValue("id")) {
		NotFound(w, "execution not found or already finished")
		return
	}
	Success(w, StopResponse{Stopped: true, Message: "execution stop requested"})
}
