package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/browser/browsertest"
	"github.com/shaiso/Webmata/internal/domain"
)

// memLogs — журнал выполнения в памяти.
type memLogs struct {
	mu      sync.Mutex
	entries []domain.ExecutionLog
}

func (m *memLogs) AppendLog(_ context.Context, entry *domain.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLogs) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Message
	}
	return out
}

type fixture struct {
	engine   *browsertest.Engine
	registry *browser.Registry
	logs     *memLogs
	exec     *Executor
	session  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	engine := browsertest.NewEngine()
	reg := browser.NewRegistry(browser.Config{Engine: engine})
	logs := &memLogs{}

	res, err := reg.Launch(context.Background(), domain.BrowserConfig{})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	return &fixture{
		engine:   engine,
		registry: reg,
		logs:     logs,
		exec:     New(Config{Sessions: reg, Logs: logs}),
		session:  res.SessionID,
	}
}

func (f *fixture) page() *browsertest.Page {
	return f.engine.Pages()[0]
}

// --- Dispatch Tests ---

func TestExecute_Actions(t *testing.T) {
	tests := []struct {
		name     string
		step     domain.AutomationStep
		wantKind string
		check    func(t *testing.T, data map[string]any)
	}{
		{
			name:     "click",
			step:     domain.AutomationStep{ActionType: domain.ActionClick, TargetSelector: "#go"},
			wantKind: "click",
		},
		{
			name:     "hover",
			step:     domain.AutomationStep{ActionType: domain.ActionHover, TargetSelector: ".menu"},
			wantKind: "hover",
		},
		{
			name:     "type",
			step:     domain.AutomationStep{ActionType: domain.ActionType, TargetSelector: "#q", TargetText: "привет"},
			wantKind: "fill",
			check: func(t *testing.T, data map[string]any) {
				if data["text_length"] != 6 {
					t.Errorf("text_length = %v", data["text_length"])
				}
			},
		},
		{
			name: "select from parameters",
			step: domain.AutomationStep{
				ActionType:     domain.ActionSelect,
				TargetSelector: "#country",
				Parameters:     map[string]any{"values": []any{"ru", "kz"}},
			},
			wantKind: "select",
		},
		{
			name:     "scroll default",
			step:     domain.AutomationStep{ActionType: domain.ActionScroll},
			wantKind: "evaluate",
			check: func(t *testing.T, data map[string]any) {
				if data["mode"] != "viewport" {
					t.Errorf("mode = %v", data["mode"])
				}
			},
		},
		{
			name:     "scroll delta",
			step:     domain.AutomationStep{ActionType: domain.ActionScroll, Parameters: map[string]any{"scroll_y": float64(300)}},
			wantKind: "evaluate",
			check: func(t *testing.T, data map[string]any) {
				if data["scroll_y"] != float64(300) {
					t.Errorf("scroll_y = %v", data["scroll_y"])
				}
			},
		},
		{
			name:     "navigate",
			step:     domain.AutomationStep{ActionType: domain.ActionNavigate, TargetURL: "https://example.com"},
			wantKind: "goto",
			check: func(t *testing.T, data map[string]any) {
				if data["final_url"] != "https://example.com" {
					t.Errorf("final_url = %v", data["final_url"])
				}
			},
		},
		{
			name:     "screenshot",
			step:     domain.AutomationStep{ActionType: domain.ActionScreenshot},
			wantKind: "screenshot",
			check: func(t *testing.T, data map[string]any) {
				if data["screenshot_size"] != 8 {
					t.Errorf("screenshot_size = %v", data["screenshot_size"])
				}
			},
		},
		{
			name: "drag_drop",
			step: domain.AutomationStep{
				ActionType:     domain.ActionDragDrop,
				TargetSelector: "#card",
				Parameters:     map[string]any{"target_selector": "#column"},
			},
			wantKind: "drag_drop",
		},
		{
			name: "upload",
			step: domain.AutomationStep{
				ActionType:     domain.ActionUpload,
				TargetSelector: "input[type=file]",
				TargetText:     "/tmp/report.pdf",
			},
			wantKind: "upload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			step := tt.step
			step.StepName = tt.name

			res, err := f.exec.Execute(context.Background(), &step, f.session)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Success {
				t.Errorf("expected success, got error %q", res.Error)
			}
			if res.Action != tt.step.ActionType {
				t.Errorf("Action = %s", res.Action)
			}

			actions := f.page().Actions()
			if len(actions) != 1 || actions[0].Kind != tt.wantKind {
				t.Errorf("expected one %s action, got %+v", tt.wantKind, actions)
			}
			if tt.check != nil {
				tt.check(t, res.Data)
			}
		})
	}
}

func TestExecute_Screenshot_IsViewportOnly(t *testing.T) {
	f := newFixture(t)
	step := &domain.AutomationStep{ActionType: domain.ActionScreenshot}

	if _, err := f.exec.Execute(context.Background(), step, f.session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.page().Actions()[0].Kind != "screenshot" {
		t.Error("step screenshot must not capture the full page")
	}
}

func TestExecute_MissingParameters(t *testing.T) {
	steps := []domain.AutomationStep{
		{ActionType: domain.ActionClick},
		{ActionType: domain.ActionHover},
		{ActionType: domain.ActionSelect},
		{ActionType: domain.ActionSelect, TargetSelector: "#s"},
		{ActionType: domain.ActionType, TargetSelector: "#q"},
		{ActionType: domain.ActionType, TargetText: "x"},
		{ActionType: domain.ActionNavigate},
		{ActionType: domain.ActionDragDrop, TargetSelector: "#a"},
		{ActionType: domain.ActionUpload, TargetSelector: "#f"},
	}

	f := newFixture(t)
	for _, s := range steps {
		step := s
		res, err := f.exec.Execute(context.Background(), &step, f.session)
		if !errors.Is(err, ErrMissingParameter) {
			t.Errorf("%s: expected ErrMissingParameter, got %v", s.ActionType, err)
		}
		if res == nil || res.Success || res.Error == "" {
			t.Errorf("%s: result should carry the failure", s.ActionType)
		}
	}

	if len(f.page().Actions()) != 0 {
		t.Error("no action should reach the page")
	}
}

func TestExecute_UnsupportedAction(t *testing.T) {
	f := newFixture(t)
	step := &domain.AutomationStep{ActionType: "double_click", TargetSelector: "#x"}

	_, err := f.exec.Execute(context.Background(), step, f.session)
	if !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("expected ErrUnsupportedAction, got %v", err)
	}
}

func TestExecute_ElementNotFound(t *testing.T) {
	f := newFixture(t)
	f.engine.SetMissing("#ghost")
	step := &domain.AutomationStep{ActionType: domain.ActionClick, TargetSelector: "#ghost"}

	_, err := f.exec.Execute(context.Background(), step, f.session)
	if !errors.Is(err, ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
}

func TestExecute_NavigationFailed(t *testing.T) {
	f := newFixture(t)
	f.engine.BadURLs["https://unreachable.invalid"] = true
	step := &domain.AutomationStep{ActionType: domain.ActionNavigate, TargetURL: "https://unreachable.invalid"}

	_, err := f.exec.Execute(context.Background(), step, f.session)
	if !errors.Is(err, ErrNavigationFailed) {
		t.Errorf("expected ErrNavigationFailed, got %v", err)
	}
	if !errors.Is(err, ErrActionFailed) {
		t.Errorf("navigation failure should also be ErrActionFailed, got %v", err)
	}
}

func TestExecute_SessionNotFound(t *testing.T) {
	f := newFixture(t)
	f.registry.Close(f.session)
	step := &domain.AutomationStep{ActionType: domain.ActionClick, TargetSelector: "#go"}

	_, err := f.exec.Execute(context.Background(), step, f.session)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

// --- Wait Tests ---

func TestExecute_Wait_UsesSecondsFromParameters(t *testing.T) {
	f := newFixture(t)
	step := &domain.AutomationStep{
		ActionType: domain.ActionWait,
		Parameters: map[string]any{"wait_time": 0.05},
		Timeout:    30,
	}

	start := time.Now()
	res, err := f.exec.Execute(context.Background(), step, f.session)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 50*time.Millisecond || elapsed > 5*time.Second {
		t.Errorf("expected ~50ms wait, got %v", elapsed)
	}
	if res.Data["waited_seconds"] != 0.05 {
		t.Errorf("waited_seconds = %v", res.Data["waited_seconds"])
	}
}

func TestExecute_Wait_Cancelled(t *testing.T) {
	f := newFixture(t)
	step := &domain.AutomationStep{ActionType: domain.ActionWait, Timeout: 30}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.exec.Execute(ctx, step, f.session)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestExecute_PostWait(t *testing.T) {
	f := newFixture(t)
	step := &domain.AutomationStep{ActionType: domain.ActionClick, TargetSelector: "#go", WaitTime: 60}

	start := time.Now()
	if _, err := f.exec.Execute(context.Background(), step, f.session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 60*time.Millisecond {
		t.Error("expected post-step wait of wait_time milliseconds")
	}
}

func TestExecute_PostWait_SkippedOnFailure(t *testing.T) {
	f := newFixture(t)
	step := &domain.AutomationStep{ActionType: domain.ActionClick, WaitTime: 2000}

	start := time.Now()
	_, _ = f.exec.Execute(context.Background(), step, f.session)
	if time.Since(start) > time.Second {
		t.Error("post-step wait must apply on success only")
	}
}

// --- Log Tests ---

func TestExecute_Logs(t *testing.T) {
	f := newFixture(t)

	ok := &domain.AutomationStep{ID: 1, TaskID: 9, StepName: "press go", ActionType: domain.ActionClick, TargetSelector: "#go"}
	bad := &domain.AutomationStep{ID: 2, TaskID: 9, StepName: "broken", ActionType: domain.ActionNavigate}

	_, _ = f.exec.Execute(context.Background(), ok, f.session)
	_, _ = f.exec.Execute(context.Background(), bad, f.session)

	msgs := f.logs.messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 log entries, got %d: %v", len(msgs), msgs)
	}
	if msgs[0] != "step started: press go" || msgs[1] != "step succeeded: press go" {
		t.Errorf("unexpected success log: %v", msgs[:2])
	}
	if msgs[2] != "step started: broken" || !strings.HasPrefix(msgs[3], "step failed: broken: ") {
		t.Errorf("unexpected failure log: %v", msgs[2:])
	}

	f.logs.mu.Lock()
	failed := f.logs.entries[3]
	f.logs.mu.Unlock()
	if failed.Level != domain.LogLevelError {
		t.Errorf("failure level = %s", failed.Level)
	}
	if failed.StepID == nil || *failed.StepID != 2 {
		t.Error("failure entry should carry the step id")
	}
	if failed.TaskID != 9 {
		t.Errorf("TaskID = %d", failed.TaskID)
	}
}
