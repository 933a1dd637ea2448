package realtime

import (
	"time"

	"github.com/shaiso/Webmata/internal/domain"
)

// Типы сообщений.
const (
	TypeConnected         = "connected"
	TypeSessionStatus     = "session_status"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeUpdateStatus      = "update_status"
	TypeRecordingEvent    = "recording_event"
	TypeRequestSnapshot   = "request_snapshot"
	TypeSnapshotRequested = "snapshot_requested"
	TypeStepsRecorded     = "steps_recorded"
)

// Message — сообщение канала.
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// eventMessage превращает событие движка в сообщение канала.
func eventMessage(ev domain.Event) Message {
	data := make(map[string]any, len(ev.Data)+4)
	for k, v := range ev.Data {
		data[k] = v
	}
	if ev.ExecutionID != "" {
		data["execution_id"] = ev.ExecutionID
	}
	if ev.TaskID != 0 {
		data["task_id"] = ev.TaskID
	}
	if ev.SessionID != "" {
		data["session_id"] = ev.SessionID
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	data["timestamp"] = ts.Format(time.RFC3339Nano)

	return Message{Type: string(ev.Type), Data: data}
}
