package domain

import (
	"time"
)

// EventType — тип события движка.
type EventType string

const (
	EventExecutionStarted  EventType = "execution.started"
	EventExecutionFinished EventType = "execution.finished"
	EventStepFinished      EventType = "step.finished"
	EventBatchStarted      EventType = "batch.started"
	EventBatchFinished     EventType = "batch.finished"
	EventPreviewStep       EventType = "preview.step"
	EventPreviewFinished   EventType = "preview.finished"
)

// Event — событие, которое оркестратор отдаёт подписчикам
// (realtime hub, шина событий).
type Event struct {
	Type        EventType      `json:"type"`
	ExecutionID string         `json:"execution_id,omitempty"`
	TaskID      int64          `json:"task_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewEvent создаёт событие с текущим временем.
func NewEvent(t EventType, executionID string, taskID int64, data map[string]any) Event {
	return Event{
		Type:        t,
		ExecutionID: executionID,
		TaskID:      taskID,
		Data:        data,
		Timestamp:   time.Now(),
	}
}
