package domain

import (
	"fmt"
	"time"
)

// EditorSession — рабочая сессия визуального редактора.
//
// Записанные шаги и состояние записи хранятся в temp_data. С браузерными
// сессиями не связана, кроме как через снимки страниц.
type EditorSession struct {
	// SessionID — UUID сессии.
	SessionID string `json:"session_id"`

	// Username — имя пользователя (опционально).
	Username string `json:"username,omitempty"`

	// TaskID — задача, с которой работает редактор.
	TaskID *int64 `json:"task_id,omitempty"`

	// CurrentURL — страница, открытая в редакторе.
	CurrentURL string `json:"current_url,omitempty"`

	// RecordedSteps — записанные шаги.
	RecordedSteps []RecordedStep `json:"recorded_steps"`

	// Recording — состояние записи (nil, если запись не запускалась).
	Recording *Recording `json:"recording,omitempty"`

	// IsAnonymous — сессия без пользователя.
	IsAnonymous bool `json:"is_anonymous"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Coordinates — координаты точки на странице.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// RecordedStep — действие, записанное в визуальном редакторе.
type RecordedStep struct {
	ActionType     ActionKind   `json:"action_type"`
	TargetSelector string       `json:"target_selector,omitempty"`
	TargetText     string       `json:"target_text,omitempty"`
	TargetURL      string       `json:"target_url,omitempty"`
	XPath          string       `json:"x_path,omitempty"`
	Coordinates    *Coordinates `json:"coordinates,omitempty"`

	// Timestamp — момент записи, секунды (дробные).
	Timestamp float64 `json:"timestamp"`

	// WaitAfter — пауза после действия, секунды.
	WaitAfter int `json:"wait_after"`

	// Parameters — параметры действия (wait_time, scroll_y и т.п.).
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ToAutomationStep преобразует записанный шаг в шаг задачи с порядковым номером i.
func (r RecordedStep) ToAutomationStep(taskID int64, i int) AutomationStep {
	params := map[string]any{
		"wait_after": r.WaitAfter,
	}
	if r.XPath != "" {
		params["x_path"] = r.XPath
	}
	if r.Coordinates != nil {
		params["coordinates"] = map[string]any{"x": r.Coordinates.X, "y": r.Coordinates.Y}
	}
	for k, v := range r.Parameters {
		params[k] = v
	}

	return AutomationStep{
		TaskID:         taskID,
		StepName:       fmt.Sprintf("Step %d: %s", i+1, r.ActionType),
		StepOrder:      i,
		ActionType:     r.ActionType,
		TargetSelector: r.TargetSelector,
		TargetText:     r.TargetText,
		TargetURL:      r.TargetURL,
		Parameters:     params,
		WaitTime:       r.WaitAfter * 1000,
		Timeout:        DefaultStepTimeout,
	}
}

// Recording — состояние активной записи в сессии редактора.
type Recording struct {
	SessionID   string     `json:"session_id"`
	TargetURL   string     `json:"target_url,omitempty"`
	IsRecording bool       `json:"is_recording"`
	StepCount   int        `json:"step_count"`
	StartedAt   time.Time  `json:"start_time"`
	StoppedAt   *time.Time `json:"end_time,omitempty"`
}

// Duration возвращает длительность записи.
func (r *Recording) Duration(now time.Time) time.Duration {
	if r.StoppedAt != nil {
		return r.StoppedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}
