package domain

import (
	"fmt"
	"strconv"
	"time"
)

// ActionKind — тип действия шага автоматизации.
//
// Закрытый набор из десяти значений. Executor обрабатывает их
// исчерпывающим switch, неизвестное значение — ошибка.
type ActionKind string

const (
	ActionClick      ActionKind = "click"
	ActionType       ActionKind = "type"
	ActionScroll     ActionKind = "scroll"
	ActionWait       ActionKind = "wait"
	ActionNavigate   ActionKind = "navigate"
	ActionScreenshot ActionKind = "screenshot"
	ActionHover      ActionKind = "hover"
	ActionDragDrop   ActionKind = "drag_drop"
	ActionSelect     ActionKind = "select"
	ActionUpload     ActionKind = "upload"
)

// ActionKinds — все поддерживаемые типы действий в каноническом порядке.
var ActionKinds = []ActionKind{
	ActionClick,
	ActionType,
	ActionScroll,
	ActionWait,
	ActionNavigate,
	ActionScreenshot,
	ActionHover,
	ActionDragDrop,
	ActionSelect,
	ActionUpload,
}

// IsValid проверяет, что тип действия известен.
func (k ActionKind) IsValid() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseActionKind преобразует строку в ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return k, nil
}

// DefaultStepTimeout — таймаут шага по умолчанию (секунды).
const DefaultStepTimeout = 30

// AutomationStep — один шаг задачи автоматизации.
type AutomationStep struct {
	// ID — идентификатор шага.
	ID int64 `json:"id"`

	// TaskID — задача, которой принадлежит шаг.
	TaskID int64 `json:"task_id"`

	// StepName — человекочитаемое имя шага.
	StepName string `json:"step_name"`

	// StepOrder — порядковый номер. Шаги выполняются по возрастанию.
	StepOrder int `json:"step_order"`

	// ActionType — тип действия.
	ActionType ActionKind `json:"action_type"`

	// TargetSelector — CSS-селектор целевого элемента.
	TargetSelector string `json:"target_selector,omitempty"`

	// TargetText — текст для ввода или значение для select.
	TargetText string `json:"target_text,omitempty"`

	// TargetURL — адрес для navigate.
	TargetURL string `json:"target_url,omitempty"`

	// Parameters — дополнительные параметры действия.
	Parameters map[string]any `json:"parameters,omitempty"`

	// WaitTime — пауза после успешного шага, миллисекунды.
	WaitTime int `json:"wait_time"`

	// Timeout — таймаут поиска элемента, секунды.
	Timeout int `json:"timeout"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// StepTimeout возвращает таймаут шага. Непозитивное значение заменяется на 30 секунд.
func (s *AutomationStep) StepTimeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultStepTimeout * time.Second
	}
	return time.Duration(s.Timeout) * time.Second
}

// PostWait возвращает паузу после успешного выполнения шага.
func (s *AutomationStep) PostWait() time.Duration {
	if s.WaitTime <= 0 {
		return 0
	}
	return time.Duration(s.WaitTime) * time.Millisecond
}

// WaitDuration возвращает длительность действия wait.
//
// Источник — parameters.wait_time, иначе Timeout. Оба в секундах,
// в отличие от поля WaitTime (миллисекунды).
func (s *AutomationStep) WaitDuration() time.Duration {
	if v, ok := s.Parameters["wait_time"]; ok {
		if secs, ok := ToFloat(v); ok {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Duration(s.Timeout) * time.Second
}

// Param возвращает строковый параметр шага или пустую строку.
func (s *AutomationStep) Param(key string) string {
	v, ok := s.Parameters[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// ParamStrings возвращает параметр как список строк.
// Одиночная строка превращается в список из одного элемента.
func (s *AutomationStep) ParamStrings(key string) []string {
	v, ok := s.Parameters[key]
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// ToFloat приводит числовое значение из JSON-карты к float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
