package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из API, CLI не импортирует internal/*) ---

// TaskResponse — задача из API.
type TaskResponse struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	URL            string         `json:"url"`
	Status         string         `json:"status"`
	Priority       int            `json:"priority"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	ExecutionCount int            `json:"execution_count"`
	SuccessCount   int            `json:"success_count"`
	FailureCount   int            `json:"failure_count"`
	CreatedAt      string         `json:"created_at"`
	StartedAt      string         `json:"started_at,omitempty"`
	CompletedAt    string         `json:"completed_at,omitempty"`
}

// StepResponse — шаг задачи из API.
type StepResponse struct {
	ID             int64          `json:"id"`
	TaskID         int64          `json:"task_id"`
	StepName       string         `json:"step_name"`
	StepOrder      int            `json:"step_order"`
	ActionType     string         `json:"action_type"`
	TargetSelector string         `json:"target_selector,omitempty"`
	TargetText     string         `json:"target_text,omitempty"`
	TargetURL      string         `json:"target_url,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	WaitTime       int            `json:"wait_time"`
	Timeout        int            `json:"timeout"`
}

// StartResponse — ответ на запуск выполнения.
type StartResponse struct {
	ExecutionID string `json:"execution_id"`
	PreviewID   string `json:"preview_id,omitempty"`
	Status      string `json:"status"`
	TotalTasks  int    `json:"total_tasks"`
	Message     string `json:"message,omitempty"`
}

// StatusResponse — статус задачи.
type StatusResponse struct {
	TaskID           int64   `json:"task_id"`
	Status           string  `json:"status"`
	Progress         float64 `json:"progress"`
	CurrentStep      string  `json:"current_step,omitempty"`
	CurrentStepIndex int     `json:"current_step_index"`
	TotalSteps       int     `json:"total_steps"`
	ExecutionID      string  `json:"execution_id,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
	ExecutionCount   int     `json:"execution_count"`
	SuccessCount     int     `json:"success_count"`
	FailureCount     int     `json:"failure_count"`
}

// IsTerminal возвращает true для финального статуса задачи.
func (s StatusResponse) IsTerminal() bool {
	switch s.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// StatsResponse — сводная статистика.
type StatsResponse struct {
	TotalTasks      int            `json:"total_tasks"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
	RecentTasks7d   int            `json:"recent_tasks_7days"`
	SuccessRate     float64        `json:"success_rate"`
	ActiveTasks     int            `json:"active_tasks"`
}

// LogResponse — запись журнала выполнения.
type LogResponse struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	StepName  string `json:"step_name,omitempty"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ExecutionResponse — запись о выполнении.
type ExecutionResponse struct {
	ExecutionID     string  `json:"execution_id"`
	Kind            string  `json:"kind"`
	TaskIDs         []int64 `json:"task_ids"`
	Status          string  `json:"status"`
	CurrentStep     int     `json:"current_step"`
	CurrentStepName string  `json:"current_step_name,omitempty"`
	TotalSteps      int     `json:"total_steps"`
	TotalTasks      int     `json:"total_tasks,omitempty"`
	CompletedTasks  int     `json:"completed_tasks,omitempty"`
	FailedTasks     int     `json:"failed_tasks,omitempty"`
	StartedAt       string  `json:"started_at"`
	CompletedAt     string  `json:"completed_at,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// SessionResponse — браузерная сессия.
type SessionResponse struct {
	SessionID    string `json:"session_id"`
	BrowserType  string `json:"browser_type"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

// LaunchResponse — результат запуска браузера.
type LaunchResponse struct {
	SessionID   string `json:"session_id"`
	BrowserType string `json:"browser_type"`
	ControlURL  string `json:"control_url"`
	Status      string `json:"status"`
}

// EditorSessionResponse — сессия визуального редактора.
type EditorSessionResponse struct {
	SessionID     string           `json:"session_id"`
	Username      string           `json:"username,omitempty"`
	TaskID        *int64           `json:"task_id,omitempty"`
	CurrentURL    string           `json:"current_url,omitempty"`
	RecordedSteps []map[string]any `json:"recorded_steps"`
	CreatedAt     string           `json:"created_at"`
	LastActivity  string           `json:"last_activity"`
}

// --- Request types ---

// CreateTaskRequest — создание задачи.
type CreateTaskRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url"`
	Priority    int            `json:"priority,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// UpdateTaskRequest — обновление задачи.
type UpdateTaskRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
}

// CreateStepRequest — создание шага.
type CreateStepRequest struct {
	TaskID         int64          `json:"task_id"`
	StepName       string         `json:"step_name"`
	StepOrder      int            `json:"step_order"`
	ActionType     string         `json:"action_type"`
	TargetSelector string         `json:"target_selector,omitempty"`
	TargetText     string         `json:"target_text,omitempty"`
	TargetURL      string         `json:"target_url,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	WaitTime       int            `json:"wait_time,omitempty"`
	Timeout        *int           `json:"timeout,omitempty"`
}

// LaunchRequest — параметры запуска браузера.
type LaunchRequest struct {
	BrowserType string `json:"browser_type,omitempty"`
	Headless    *bool  `json:"headless,omitempty"`
	WindowSize  string `json:"window_size,omitempty"`
}

// ListTasksOpts — параметры фильтрации задач.
type ListTasksOpts struct {
	Status string
	Offset int
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Webmata API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает задачи с фильтрацией.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// CreateTask создаёт задачу.
func (c *Client) CreateTask(req CreateTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// GetTask возвращает задачу по ID.
func (c *Client) GetTask(id int64) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get(taskPath(id), &task)
	return &task, err
}

// UpdateTask обновляет задачу.
func (c *Client) UpdateTask(id int64, req UpdateTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.put(taskPath(id), req, &task)
	return &task, err
}

// DeleteTask удаляет задачу.
func (c *Client) DeleteTask(id int64) error {
	return c.delete(taskPath(id))
}

// ExecuteTask запускает задачу.
func (c *Client) ExecuteTask(id int64, forceRestart bool) (*StartResponse, error) {
	var res StartResponse
	body := map[string]bool{"force_restart": forceRestart}
	err := c.post(taskPath(id)+"/execute", body, &res)
	return &res, err
}

// BatchExecute запускает несколько задач.
func (c *Client) BatchExecute(ids []int64) (*StartResponse, error) {
	var res StartResponse
	body := map[string][]int64{"task_ids": ids}
	err := c.post("/api/v1/tasks/batch/execute", body, &res)
	return &res, err
}

// TaskStatus возвращает статус задачи.
func (c *Client) TaskStatus(id int64) (*StatusResponse, error) {
	var status StatusResponse
	err := c.get(taskPath(id)+"/status", &status)
	return &status, err
}

// StopTask останавливает задачу.
func (c *Client) StopTask(id int64) error {
	return c.post(taskPath(id)+"/stop", nil, nil)
}

// TaskStats возвращает сводную статистику.
func (c *Client) TaskStats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/tasks/stats/overview", &stats)
	return &stats, err
}

// TaskLogs возвращает журнал задачи.
func (c *Client) TaskLogs(id int64, level string, limit int) ([]LogResponse, error) {
	params := url.Values{}
	if level != "" {
		params.Set("level", level)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var logs []LogResponse
	err := c.list(taskPath(id)+"/logs", params, &logs)
	return logs, err
}

// PreviewTask запускает предпросмотр.
func (c *Client) PreviewTask(id int64) (*StartResponse, error) {
	var res StartResponse
	body := map[string]int64{"task_id": id}
	err := c.post("/api/v1/automation/preview", body, &res)
	return &res, err
}

// GetPreview возвращает результат предпросмотра.
func (c *Client) GetPreview(previewID string) (*ExecutionResponse, error) {
	var rec ExecutionResponse
	err := c.get("/api/v1/automation/preview/"+url.PathEscape(previewID), &rec)
	return &rec, err
}

// --- Steps ---

// ListSteps возвращает шаги задачи.
func (c *Client) ListSteps(taskID int64) ([]StepResponse, error) {
	var steps []StepResponse
	err := c.list("/api/v1/automation/steps/task/"+strconv.FormatInt(taskID, 10), nil, &steps)
	return steps, err
}

// CreateStep добавляет шаг.
func (c *Client) CreateStep(req CreateStepRequest) (*StepResponse, error) {
	var step StepResponse
	err := c.post("/api/v1/automation/steps", req, &step)
	return &step, err
}

// DeleteStep удаляет шаг.
func (c *Client) DeleteStep(id int64) error {
	return c.delete("/api/v1/automation/steps/" + strconv.FormatInt(id, 10))
}

// --- Browser sessions ---

// ListSessions возвращает открытые браузерные сессии.
func (c *Client) ListSessions() ([]SessionResponse, error) {
	var sessions []SessionResponse
	err := c.list("/api/v1/automation/sessions", nil, &sessions)
	return sessions, err
}

// LaunchBrowser открывает браузерную сессию.
func (c *Client) LaunchBrowser(req LaunchRequest) (*LaunchResponse, error) {
	var res LaunchResponse
	err := c.post("/api/v1/automation/browser/launch", req, &res)
	return &res, err
}

// CloseSession закрывает браузерную сессию.
func (c *Client) CloseSession(id string) error {
	return c.delete("/api/v1/automation/sessions/" + url.PathEscape(id))
}

// --- Executions ---

// ListExecutions возвращает выполнения.
func (c *Client) ListExecutions(limit int) ([]ExecutionResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var recs []ExecutionResponse
	err := c.list("/api/v1/executions", params, &recs)
	return recs, err
}

// GetExecution возвращает запись о выполнении.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var rec ExecutionResponse
	err := c.get("/api/v1/executions/"+url.PathEscape(id), &rec)
	return &rec, err
}

// StopExecution останавливает выполнение.
func (c *Client) StopExecution(id string) error {
	return c.post("/api/v1/executions/"+url.PathEscape(id)+"/stop", nil, nil)
}

// --- Editor ---

// ListEditorSessions возвращает активные сессии редактора.
func (c *Client) ListEditorSessions() ([]EditorSessionResponse, error) {
	var sessions []EditorSessionResponse
	err := c.list("/api/v1/editor/sessions", nil, &sessions)
	return sessions, err
}

// ExportRecording выгружает запись в указанном формате.
func (c *Client) ExportRecording(sessionID, format string) (json.RawMessage, error) {
	path := "/api/v1/editor/sessions/" + url.PathEscape(sessionID) + "/export"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}

	var raw json.RawMessage
	err := c.get(path, &raw)
	return raw, err
}

// ConvertRecording создаёт шаги задачи из записи.
func (c *Client) ConvertRecording(sessionID string, taskID int64) (int, error) {
	var res struct {
		StepCount int `json:"step_count"`
	}
	body := map[string]int64{"task_id": taskID}
	err := c.post("/api/v1/editor/sessions/"+url.PathEscape(sessionID)+"/convert", body, &res)
	return res.StepCount, err
}

// --- HTTP helpers ---

func taskPath(id int64) string {
	return "/api/v1/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
