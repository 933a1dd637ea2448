package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	// без логгера — глобальный
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}

	logger := slog.New(slog.DiscardHandler)
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
}

func TestResult(t *testing.T) {
	if Result(true) != "success" || Result(false) != "failure" {
		t.Error("unexpected result labels")
	}
}

func TestWithIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger = WithSessionID(WithExecutionID(WithTaskID(logger, 7), "exec_7_1"), "sess-1")
	logger.Info("step done")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["task_id"] != float64(7) {
		t.Errorf("task_id = %v", rec["task_id"])
	}
	if rec["execution_id"] != "exec_7_1" {
		t.Errorf("execution_id = %v", rec["execution_id"])
	}
	if rec["session_id"] != "sess-1" {
		t.Errorf("session_id = %v", rec["session_id"])
	}
}
