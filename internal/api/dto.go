package api

import (
	"strings"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/editor"
)

// Task DTOs

// CreateTaskRequest — запрос на создание задачи.
type CreateTaskRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url"`
	Priority    int            `json:"priority,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Validate проверяет обязательные поля.
func (r CreateTaskRequest) Validate() string {
	if strings.TrimSpace(r.Name) == "" {
		return "name is required"
	}
	if strings.TrimSpace(r.URL) == "" {
		return "url is required"
	}
	return ""
}

// ToDomain создаёт задачу в статусе pending.
func (r CreateTaskRequest) ToDomain() *domain.Task {
	return &domain.Task{
		Name:        r.Name,
		Description: r.Description,
		URL:         r.URL,
		Priority:    r.Priority,
		Parameters:  r.Parameters,
		Status:      domain.TaskStatusPending,
	}
}

// UpdateTaskRequest — запрос на обновление задачи.
type UpdateTaskRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	URL         *string        `json:"url,omitempty"`
	Priority    *int           `json:"priority,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Apply накладывает заданные поля на задачу.
func (r UpdateTaskRequest) Apply(t *domain.Task) {
	if r.Name != nil {
		t.Name = *r.Name
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.URL != nil {
		t.URL = *r.URL
	}
	if r.Priority != nil {
		t.Priority = *r.Priority
	}
	if r.Parameters != nil {
		t.Parameters = r.Parameters
	}
}

// ExecuteTaskRequest — тело POST /tasks/{id}/execute (необязательное).
type ExecuteTaskRequest struct {
	ForceRestart bool `json:"force_restart"`
}

// BatchExecuteRequest — запрос на пакетный запуск.
type BatchExecuteRequest struct {
	TaskIDs []int64 `json:"task_ids"`
}

// ExecutionResponse — ответ на запуск выполнения.
type ExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	TotalTasks  int    `json:"total_tasks"`
	Message     string `json:"message,omitempty"`
}

// StopResponse — ответ на остановку.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

// Step DTOs

// CreateStepRequest — запрос на создание шага.
type CreateStepRequest struct {
	TaskID         int64             `json:"task_id"`
	StepName       string            `json:"step_name"`
	StepOrder      int               `json:"step_order"`
	ActionType     domain.ActionKind `json:"action_type"`
	TargetSelector string            `json:"target_selector,omitempty"`
	TargetText     string            `json:"target_text,omitempty"`
	TargetURL      string            `json:"target_url,omitempty"`
	Parameters     map[string]any    `json:"parameters,omitempty"`
	WaitTime       int               `json:"wait_time,omitempty"`
	Timeout        *int              `json:"timeout,omitempty"`
}

// Validate проверяет обязательные поля.
func (r CreateStepRequest) Validate() string {
	if r.TaskID <= 0 {
		return "task_id is required"
	}
	if strings.TrimSpace(r.StepName) == "" {
		return "step_name is required"
	}
	if !r.ActionType.IsValid() {
		return "unsupported action_type: " + string(r.ActionType)
	}
	if r.WaitTime < 0 {
		return "wait_time must not be negative"
	}
	return ""
}

// ToDomain создаёт шаг. Таймаут по умолчанию — 30 секунд.
func (r CreateStepRequest) ToDomain() *domain.AutomationStep {
	timeout := domain.DefaultStepTimeout
	if r.Timeout != nil {
		timeout = *r.Timeout
	}
	return &domain.AutomationStep{
		TaskID:         r.TaskID,
		StepName:       r.StepName,
		StepOrder:      r.StepOrder,
		ActionType:     r.ActionType,
		TargetSelector: r.TargetSelector,
		TargetText:     r.TargetText,
		TargetURL:      r.TargetURL,
		Parameters:     r.Parameters,
		WaitTime:       r.WaitTime,
		Timeout:        timeout,
	}
}

// UpdateStepRequest — запрос на обновление шага.
type UpdateStepRequest struct {
	StepName       *string            `json:"step_name,omitempty"`
	StepOrder      *int               `json:"step_order,omitempty"`
	ActionType     *domain.ActionKind `json:"action_type,omitempty"`
	TargetSelector *string            `json:"target_selector,omitempty"`
	TargetText     *string            `json:"target_text,omitempty"`
	TargetURL      *string            `json:"target_url,omitempty"`
	Parameters     map[string]any     `json:"parameters,omitempty"`
	WaitTime       *int               `json:"wait_time,omitempty"`
	Timeout        *int               `json:"timeout,omitempty"`
}

// Apply накладывает заданные поля на шаг.
func (r UpdateStepRequest) Apply(s *domain.AutomationStep) string {
	if r.ActionType != nil {
		if !r.ActionType.IsValid() {
			return "unsupported action_type: " + string(*r.ActionType)
		}
		s.ActionType = *r.ActionType
	}
	if r.StepName != nil {
		s.StepName = *r.StepName
	}
	if r.StepOrder != nil {
		s.StepOrder = *r.StepOrder
	}
	if r.TargetSelector != nil {
		s.TargetSelector = *r.TargetSelector
	}
	if r.TargetText != nil {
		s.TargetText = *r.TargetText
	}
	if r.TargetURL != nil {
		s.TargetURL = *r.TargetURL
	}
	if r.Parameters != nil {
		s.Parameters = r.Parameters
	}
	if r.WaitTime != nil {
		s.WaitTime = *r.WaitTime
	}
	if r.Timeout != nil {
		s.Timeout = *r.Timeout
	}
	return ""
}

// PreviewRequest — запрос на предпросмотр задачи.
type PreviewRequest struct {
	TaskID int64 `json:"task_id"`
}

// Browser DTOs

// LaunchBrowserRequest — параметры запуска браузера.
type LaunchBrowserRequest struct {
	BrowserType string `json:"browser_type,omitempty"`
	Headless    *bool  `json:"headless,omitempty"`
	WindowSize  string `json:"window_size,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	ProxyURL    string `json:"proxy_url,omitempty"`
	Timeout     int    `json:"timeout,omitempty"`
}

// ToDomain разбирает тип браузера. Пустой тип берётся из настроек реестра.
func (r LaunchBrowserRequest) ToDomain() (domain.BrowserConfig, error) {
	cfg := domain.BrowserConfig{
		Headless:   r.Headless,
		WindowSize: r.WindowSize,
		UserAgent:  r.UserAgent,
		ProxyURL:   r.ProxyURL,
		Timeout:    r.Timeout,
	}
	if r.BrowserType != "" {
		bt, err := domain.ParseBrowserType(r.BrowserType)
		if err != nil {
			return cfg, err
		}
		cfg.BrowserType = bt
	}
	return cfg, nil
}

// NavigateRequest — переход на адрес в открытой сессии.
type NavigateRequest struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout,omitempty"`
}

// NavigateResponse — результат перехода.
type NavigateResponse struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	FinalURL   string `json:"final_url"`
	StatusCode int    `json:"status_code,omitempty"`
}

// ScreenshotResponse — снимок видимой области страницы.
type ScreenshotResponse struct {
	SessionID  string `json:"session_id"`
	Screenshot string `json:"screenshot"`
	Format     string `json:"format"`
}

// ValidateXPathRequest — запрос на проверку XPath.
type ValidateXPathRequest struct {
	XPath string `json:"xpath"`
}

// Editor DTOs

// RecordStepsRequest — пачка записанных шагов.
type RecordStepsRequest struct {
	SessionID string                `json:"session_id"`
	Steps     []domain.RecordedStep `json:"steps"`
}

// ConvertRequest — задача, в которую переносится запись.
type ConvertRequest struct {
	TaskID int64 `json:"task_id"`
}

// StartRecordingRequest — начало записи.
type StartRecordingRequest struct {
	TargetURL string `json:"target_url"`
}

// ValidateSelectorRequest — запрос на проверку селектора.
type ValidateSelectorRequest struct {
	Selector string              `json:"selector"`
	Type     editor.SelectorType `json:"selector_type,omitempty"`
}

// SnapshotRequest — запрос на снимок страницы.
type SnapshotRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ConvertResponse — шаги, созданные из записи.
type ConvertResponse struct {
	SessionID string                  `json:"session_id"`
	TaskID    int64                   `json:"task_id"`
	StepCount int                     `json:"step_count"`
	Steps     []domain.AutomationStep `json:"steps"`
}
