package orchestrator

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
	"github.com/shaiso/Webmata/internal/executor"
	"github.com/shaiso/Webmata/internal/repo"
)

// memTasks — хранилище задач в памяти.
type memTasks struct {
	mu    sync.Mutex
	tasks map[int64]*domain.Task
}

func (m *memTasks) Get(_ context.Context, id int64) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) UpdateExecution(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memTasks) put(task domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = &task
}

func (m *memTasks) get(id int64) domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tasks[id]
}

// memSteps — шаги в памяти.
type memSteps struct {
	mu    sync.Mutex
	steps map[int64][]domain.AutomationStep
}

func (m *memSteps) ListByTask(_ context.Context, taskID int64) ([]domain.AutomationStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AutomationStep(nil), m.steps[taskID]...), nil
}

func (m *memSteps) set(taskID int64, steps ...domain.AutomationStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range steps {
		steps[i].TaskID = taskID
		if steps[i].ID == 0 {
			steps[i].ID = taskID*100 + int64(i) + 1
		}
	}
	m.steps[taskID] = steps
}

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

func (m *memLogs) count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if strings.HasPrefix(e.Message, prefix) {
			n++
		}
	}
	return n
}

// memEvents собирает события.
type memEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *memEvents) Publish(_ context.Context, event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *memEvents) count(t domain.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// panicRunner паникует на любом шаге.
type panicRunner struct{}

func (panicRunner) Execute(context.Context, *domain.AutomationStep, string) (*executor.ActionResult, error) {
	panic("boom")
}

type fixture struct {
	engine *browsertest.Engine
	tasks  *memTasks
	steps  *memSteps
	logs   *memLogs
	events *memEvents
	orch   *Orchestrator
}

func newFixture(t *testing.T, tweak func(cfg *Config)) *fixture {
	t.Helper()

	engine := browsertest.NewEngine()
	reg := browser.NewRegistry(browser.Config{Engine: engine})
	logs := &memLogs{}

	f := &fixture{
		engine: engine,
		tasks:  &memTasks{tasks: make(map[int64]*domain.Task)},
		steps:  &memSteps{steps: make(map[int64][]domain.AutomationStep)},
		logs:   logs,
		events: &memEvents{},
	}

	cfg := Config{
		Tasks:        f.tasks,
		Steps:        f.steps,
		Sessions:     reg,
		Runner:       executor.New(executor.Config{Sessions: reg, Logs: logs}),
		Logs:         logs,
		Events:       f.events,
		PreviewDelay: -1,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	f.orch = New(cfg)
	t.Cleanup(f.orch.Stop)
	return f
}

func (f *fixture) addTask(id int64, url string, steps ...domain.AutomationStep) {
	f.tasks.put(domain.Task{
		ID:        id,
		Name:      "task",
		URL:       url,
		Status:    domain.TaskStatusPending,
		CreatedAt: time.Now(),
	})
	f.steps.set(id, steps...)
}

func clickStep(order int, selector string) domain.AutomationStep {
	return domain.AutomationStep{
		StepName:       "click " + selector,
		StepOrder:      order,
		ActionType:     domain.ActionClick,
		TargetSelector: selector,
	}
}

// --- CompletionPolicy Tests ---

func TestCompletionPolicy_Decide(t *testing.T) {
	tests := []struct {
		name      string
		policy    CompletionPolicy
		succeeded int
		failed    int
		status    domain.TaskStatus
		note      string
	}{
		{"nothing executed", CompletionPolicy{}, 0, 0, domain.TaskStatusFailed, "no steps executed"},
		{"all failed", CompletionPolicy{}, 0, 3, domain.TaskStatusFailed, "all steps failed"},
		{"all succeeded", CompletionPolicy{}, 3, 0, domain.TaskStatusCompleted, ""},
		{"partial", CompletionPolicy{}, 2, 1, domain.TaskStatusCompleted, "partial failure: 1/3 steps failed"},
		{"below threshold", CompletionPolicy{MinSuccessRatio: 0.8}, 2, 1, domain.TaskStatusFailed,
			"success ratio 0.67 below threshold 0.80: 1/3 steps failed"},
		{"at threshold", CompletionPolicy{MinSuccessRatio: 0.5}, 1, 1, domain.TaskStatusCompleted,
			"partial failure: 1/2 steps failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, note := tt.policy.Decide(tt.succeeded, tt.failed)
			if status != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, status)
			}
			if note != tt.note {
				t.Errorf("expected note %q, got %q", tt.note, note)
			}
		})
	}
}

// --- RunState Tests ---

func TestRunState_Progress(t *testing.T) {
	state := NewRunState(1, "exec_1_1")
	state.SetTotalSteps(3)

	step := &domain.AutomationStep{StepName: "first"}
	state.MarkStepStarted(0, step)
	if rec := state.Record(); rec.CurrentStepName != "first" || rec.CurrentStep != 0 {
		t.Errorf("unexpected record after start: %+v", rec)
	}

	state.MarkStepFinished(domain.StepOutcome{Success: true})
	state.MarkStepFinished(domain.StepOutcome{Success: false})

	s, f := state.Counts()
	if s != 1 || f != 1 {
		t.Errorf("expected 1/1, got %d/%d", s, f)
	}
	if state.Record().CurrentStep != 2 {
		t.Errorf("expected current step 2, got %d", state.Record().CurrentStep)
	}

	rec := state.Finish(domain.ExecutionStatusCompleted, "")
	if rec.CompletedAt == nil || rec.Status != domain.ExecutionStatusCompleted {
		t.Errorf("record not finished: %+v", rec)
	}
}

func TestRunState_Cancel(t *testing.T) {
	state := NewRunState(1, "exec_1_1")
	if state.IsCancelled() {
		t.Fatal("should not be cancelled initially")
	}

	state.Cancel("first")
	state.Cancel("second")

	if !state.IsCancelled() {
		t.Error("should be cancelled")
	}
	if state.CancelReason() != "first" {
		t.Errorf("expected first reason to win, got %q", state.CancelReason())
	}
}

// --- Run Tests ---

func TestRun_AllStepsSucceed(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "https://example.com",
		domain.AutomationStep{StepName: "open", StepOrder: 1, ActionType: domain.ActionNavigate, TargetURL: "https://example.com/login"},
		clickStep(2, "#submit"),
		domain.AutomationStep{StepName: "pause", StepOrder: 3, ActionType: domain.ActionWait, Parameters: map[string]any{"wait_time": 0}},
	)

	if err := f.orch.Run(context.Background(), 1, "exec_1_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := f.tasks.get(1)
	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s (%s)", task.Status, task.ErrorMessage)
	}
	if task.ExecutionCount != 1 || task.SuccessCount != 3 || task.FailureCount != 0 {
		t.Errorf("unexpected counters: %d/%d/%d", task.ExecutionCount, task.SuccessCount, task.FailureCount)
	}
	if task.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if task.Result["execution_id"] != "exec_1_1" {
		t.Errorf("unexpected result: %v", task.Result)
	}

	if f.engine.Launched() != 1 || f.engine.Closed() != 1 {
		t.Errorf("expected one session opened and closed, got %d/%d", f.engine.Launched(), f.engine.Closed())
	}
	if f.logs.count("step started") != 3 || f.logs.count("step succeeded") != 3 {
		t.Errorf("expected 3 started and 3 succeeded logs, got %d/%d",
			f.logs.count("step started"), f.logs.count("step succeeded"))
	}

	if f.events.count(domain.EventExecutionStarted) != 1 ||
		f.events.count(domain.EventStepFinished) != 3 ||
		f.events.count(domain.EventExecutionFinished) != 1 {
		t.Errorf("unexpected events: %+v", f.events.events)
	}
	if f.orch.ActiveCount() != 0 {
		t.Error("run should not stay active")
	}
}

func TestRun_StepsRunInOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(3, "#c"), clickStep(1, "#a"), clickStep(2, "#b"))

	if err := f.orch.Run(context.Background(), 1, "exec_1_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actions := f.engine.Pages()[0].Actions()
	want := []string{"#a", "#b", "#c"}
	if len(actions) != len(want) {
		t.Fatalf("expected %d actions, got %+v", len(want), actions)
	}
	for i, sel := range want {
		if actions[i].Selector != sel {
			t.Errorf("action %d: expected %s, got %s", i, sel, actions[i].Selector)
		}
	}
}

func TestRun_RendersParametersAndStepData(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "https://shop.test/{{ .Params.lang }}",
		domain.AutomationStep{StepName: "open", StepOrder: 1, ActionType: domain.ActionNavigate,
			TargetURL: "https://shop.test/?q={{ urlquery .Params.query }}"},
		domain.AutomationStep{StepName: "fill", StepOrder: 2, ActionType: domain.ActionType,
			TargetSelector: "#note", TargetText: "{{ .Params.query }} from {{ .Steps.open.final_url }}"},
		domain.AutomationStep{StepName: "broken", StepOrder: 3, ActionType: domain.ActionClick,
			TargetSelector: "{{ .Params.query"},
	)
	task := f.tasks.get(1)
	task.Parameters = map[string]any{"lang": "kz", "query": "tea"}
	f.tasks.put(task)

	if err := f.orch.Run(context.Background(), 1, "exec_1_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actions := f.engine.Pages()[0].Actions()
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %+v", actions)
	}
	if actions[0].Value != "https://shop.test/kz" {
		t.Errorf("task url not rendered: %q", actions[0].Value)
	}
	if actions[1].Value != "https://shop.test/?q=tea" {
		t.Errorf("step url not rendered: %q", actions[1].Value)
	}
	if actions[2].Value != "tea from https://shop.test/?q=tea" {
		t.Errorf("step text not rendered: %q", actions[2].Value)
	}

	task = f.tasks.get(1)
	if task.SuccessCount != 2 || task.FailureCount != 1 {
		t.Errorf("template error should fail only its step: %d/%d", task.SuccessCount, task.FailureCount)
	}
}

func TestRun_PartialFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetMissing("#missing")
	f.addTask(1, "", clickStep(1, "#ok"), clickStep(2, "#missing"), clickStep(3, "#ok"))

	if err := f.orch.Run(context.Background(), 1, "exec_1_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := f.tasks.get(1)
	if task.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", task.Status)
	}
	if task.ErrorMessage != "partial failure: 1/3 steps failed" {
		t.Errorf("unexpected note: %q", task.ErrorMessage)
	}
	if task.SuccessCount != 2 || task.FailureCount != 1 {
		t.Errorf("unexpected counters: %d/%d", task.SuccessCount, task.FailureCount)
	}
}

func TestRun_AllStepsFail(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetMissing("#missing")
	f.addTask(1, "", clickStep(1, "#missing"), clickStep(2, "#missing"))

	if err := f.orch.Run(context.Background(), 1, "exec_1_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := f.tasks.get(1)
	if task.Status != domain.TaskStatusFailed || task.ErrorMessage != "all steps failed" {
		t.Errorf("expected failed/all steps failed, got %s/%q", task.Status, task.ErrorMessage)
	}
	if task.ExecutionCount != 1 || task.FailureCount != 2 {
		t.Errorf("unexpected counters: %d/%d", task.ExecutionCount, task.FailureCount)
	}
}

func TestRun_MinSuccessRatio(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Policy = CompletionPolicy{MinSuccessRatio: 0.9}
	})
	f.engine.SetMissing("#missing")
	f.addTask(1, "", clickStep(1, "#ok"), clickStep(2, "#missing"))

	_ = f.orch.Run(context.Background(), 1, "exec_1_1")

	if task := f.tasks.get(1); task.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", task.Status)
	}
}

func TestRun_NoSteps(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "https://example.com")

	err := f.orch.Run(context.Background(), 1, "exec_1_1")
	if !errors.Is(err, ErrNoStepsConfigured) {
		t.Fatalf("expected ErrNoStepsConfigured, got %v", err)
	}

	task := f.tasks.get(1)
	if task.Status != domain.TaskStatusFailed || task.ErrorMessage != "no steps configured" {
		t.Errorf("unexpected task: %s/%q", task.Status, task.ErrorMessage)
	}
	if task.ExecutionCount != 0 {
		t.Errorf("counters should not change, got %d", task.ExecutionCount)
	}
	if f.engine.Launched() != 0 {
		t.Error("no session should be opened")
	}
}

func TestRun_TaskNotFound(t *testing.T) {
	f := newFixture(t, nil)

	err := f.orch.Run(context.Background(), 42, "exec_42_1")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.LaunchErr = errors.New("browser crashed")
	f.addTask(1, "", clickStep(1, "#a"))

	if err := f.orch.Run(context.Background(), 1, "exec_1_1"); err == nil {
		t.Fatal("expected error")
	}

	task := f.tasks.get(1)
	if task.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", task.Status)
	}
	if !strings.Contains(task.ErrorMessage, "session launch failed") {
		t.Errorf("unexpected note: %q", task.ErrorMessage)
	}
	if task.ExecutionCount != 0 {
		t.Error("counters should not change on infrastructure faults")
	}
}

func TestRun_InitialNavigationFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.BadURLs["https://bad.example"] = true
	f.addTask(1, "https://bad.example", clickStep(1, "#a"))

	_ = f.orch.Run(context.Background(), 1, "exec_1_1")

	task := f.tasks.get(1)
	if task.Status != domain.TaskStatusFailed || !strings.Contains(task.ErrorMessage, "initial navigation failed") {
		t.Errorf("unexpected task: %s/%q", task.Status, task.ErrorMessage)
	}
	if f.engine.Closed() != 1 {
		t.Error("session should be released")
	}
}

func TestRun_PanicReleasesSession(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Runner = panicRunner{}
	})
	f.addTask(1, "", clickStep(1, "#a"))

	err := f.orch.Run(context.Background(), 1, "exec_1_1")
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected panic error, got %v", err)
	}

	if task := f.tasks.get(1); task.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", task.Status)
	}
	if f.engine.Closed() != 1 {
		t.Error("session should be released after panic")
	}
	if f.orch.ActiveCount() != 0 {
		t.Error("run should not stay active")
	}
}

func TestRun_TaskTimeout(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.TaskTimeout = 10 * time.Millisecond
	})
	f.engine.ActionDelay = 20 * time.Millisecond
	f.addTask(1, "", clickStep(1, "#a"), clickStep(2, "#b"), clickStep(3, "#c"))

	_ = f.orch.Run(context.Background(), 1, "exec_1_1")

	task := f.tasks.get(1)
	if task.Status != domain.TaskStatusFailed || !strings.Contains(task.ErrorMessage, "timeout") {
		t.Errorf("unexpected task: %s/%q", task.Status, task.ErrorMessage)
	}
	if task.SuccessCount != 1 {
		t.Errorf("expected one executed step, got %d", task.SuccessCount)
	}
}

// --- Execute Tests ---

func TestExecute_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.ActionDelay = 30 * time.Millisecond
	f.addTask(1, "", clickStep(1, "#a"))

	execID, err := f.orch.Execute(context.Background(), 1, RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(execID, "exec_1_") {
		t.Errorf("unexpected execution id %q", execID)
	}

	if _, err := f.orch.Execute(context.Background(), 1, RunOptions{}); !errors.Is(err, ErrTaskAlreadyRunning) {
		t.Errorf("expected ErrTaskAlreadyRunning, got %v", err)
	}

	f.orch.wg.Wait()

	if f.engine.Launched() != 1 {
		t.Errorf("expected one session, got %d", f.engine.Launched())
	}
	if task := f.tasks.get(1); task.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", task.Status)
	}
}

func TestExecute_ForceRestart(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"))
	task := f.tasks.get(1)
	task.Status = domain.TaskStatusRunning
	f.tasks.put(task)

	if _, err := f.orch.Execute(context.Background(), 1, RunOptions{}); !errors.Is(err, ErrTaskAlreadyRunning) {
		t.Fatalf("expected ErrTaskAlreadyRunning, got %v", err)
	}

	if _, err := f.orch.Execute(context.Background(), 1, RunOptions{ForceRestart: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.orch.wg.Wait()

	if got := f.tasks.get(1); got.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestExecute_AfterStop(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"))
	f.orch.Stop()

	if _, err := f.orch.Execute(context.Background(), 1, RunOptions{}); !errors.Is(err, ErrOrchestratorStopped) {
		t.Errorf("expected ErrOrchestratorStopped, got %v", err)
	}
}

// --- Stop Tests ---

func TestStopTask_CancelsBetweenSteps(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.ActionDelay = 50 * time.Millisecond
	f.addTask(1, "", clickStep(1, "#a"), clickStep(2, "#b"), clickStep(3, "#c"))

	if _, err := f.orch.Execute(context.Background(), 1, RunOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	stopped, err := f.orch.StopTask(context.Background(), 1)
	if err != nil || !stopped {
		t.Fatalf("expected stop, got %v/%v", stopped, err)
	}
	f.orch.wg.Wait()

	task := f.tasks.get(1)
	if task.Status != domain.TaskStatusCancelled || task.ErrorMessage != "stopped by user" {
		t.Errorf("unexpected task: %s/%q", task.Status, task.ErrorMessage)
	}
	if executed := task.SuccessCount + task.FailureCount; executed >= 3 {
		t.Errorf("expected run to stop early, executed %d", executed)
	}
	if task.ExecutionCount != 1 {
		t.Errorf("expected execution counted, got %d", task.ExecutionCount)
	}
	if f.engine.Closed() != 1 {
		t.Error("session should be released")
	}
}

func TestStopTask_FinishedTask(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"))
	task := f.tasks.get(1)
	task.Status = domain.TaskStatusCompleted
	f.tasks.put(task)

	stopped, err := f.orch.StopTask(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stopped {
		t.Error("completed task should not be stopped")
	}
}

func TestStopTask_PendingTask(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"))

	stopped, err := f.orch.StopTask(context.Background(), 1)
	if err != nil || !stopped {
		t.Fatalf("expected stop, got %v/%v", stopped, err)
	}
	if task := f.tasks.get(1); task.Status != domain.TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", task.Status)
	}
}

func TestStopExecution_Unknown(t *testing.T) {
	f := newFixture(t, nil)
	if f.orch.StopExecution("exec_1_1") {
		t.Error("unknown execution should not be stopped")
	}
}

// --- Batch Tests ---

func TestRunBatch_IsolatesFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.BadURLs["https://bad.example"] = true
	f.addTask(1, "https://ok.example", clickStep(1, "#a"))
	f.addTask(2, "https://ok.example", clickStep(1, "#a"))
	f.addTask(3, "https://bad.example", clickStep(1, "#a"))

	rec, err := f.orch.RunBatch(context.Background(), []int64{1, 2, 3, 99}, "batch_1_deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Status != domain.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", rec.Status)
	}
	if rec.TotalTasks != 4 || rec.CompletedTasks != 2 || rec.FailedTasks != 2 {
		t.Errorf("unexpected counts: %d/%d/%d", rec.TotalTasks, rec.CompletedTasks, rec.FailedTasks)
	}

	for _, id := range []int64{1, 2} {
		if task := f.tasks.get(id); task.Status != domain.TaskStatusCompleted {
			t.Errorf("task %d: expected completed, got %s", id, task.Status)
		}
	}
	if task := f.tasks.get(3); task.Status != domain.TaskStatusFailed {
		t.Errorf("task 3: expected failed, got %s", task.Status)
	}

	if f.engine.Launched() != 3 || f.engine.Closed() != 3 {
		t.Errorf("expected 3 sessions opened and closed, got %d/%d", f.engine.Launched(), f.engine.Closed())
	}
	if f.events.count(domain.EventBatchStarted) != 1 || f.events.count(domain.EventBatchFinished) != 1 {
		t.Error("expected batch events")
	}
}

func TestRunBatch_BoundedConcurrency(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.MaxConcurrent = 1
	})
	f.engine.ActionDelay = 5 * time.Millisecond
	for id := int64(1); id <= 3; id++ {
		f.addTask(id, "", clickStep(1, "#a"))
	}

	rec, err := f.orch.RunBatch(context.Background(), []int64{1, 2, 3}, "batch_1_cafebabe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.CompletedTasks != 3 {
		t.Errorf("expected 3 completed, got %d", rec.CompletedTasks)
	}
}

func TestExecutionStatus_ConsumesFinishedBatch(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"))

	if _, err := f.orch.RunBatch(context.Background(), []int64{1}, "batch_1_00000000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ok := f.orch.ExecutionStatus("batch_1_00000000")
	if !ok || rec.CompletedTasks != 1 {
		t.Fatalf("expected finished batch record, got %v/%+v", ok, rec)
	}
	if _, ok := f.orch.ExecutionStatus("batch_1_00000000"); ok {
		t.Error("batch record should be consumed by the first read")
	}
}

func TestExecuteBatch_Empty(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.orch.ExecuteBatch(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestExecuteBatch_Async(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"))
	f.addTask(2, "", clickStep(1, "#a"))

	batchID, err := f.orch.ExecuteBatch(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(batchID, "batch_") {
		t.Errorf("unexpected batch id %q", batchID)
	}
	f.orch.wg.Wait()

	rec, ok := f.orch.ExecutionStatus(batchID)
	if !ok || rec.Status != domain.ExecutionStatusCompleted || rec.CompletedTasks != 2 {
		t.Errorf("unexpected batch record: %v/%+v", ok, rec)
	}
}

// --- Preview Tests ---

func TestPreview_StopsAtFirstError(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetMissing("#missing")
	f.addTask(1, "https://example.com", clickStep(1, "#a"), clickStep(2, "#missing"), clickStep(3, "#c"))

	previewID, err := f.orch.Preview(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.orch.wg.Wait()

	rec, ok := f.orch.PreviewResult(previewID)
	if !ok {
		t.Fatal("preview result not found")
	}
	if rec.Status != domain.ExecutionStatusFailed {
		t.Errorf("expected failed, got %s", rec.Status)
	}
	if len(rec.Outcomes) != 2 {
		t.Errorf("expected 2 outcomes, got %d", len(rec.Outcomes))
	}

	if task := f.tasks.get(1); task.Status != domain.TaskStatusPending || task.ExecutionCount != 0 {
		t.Errorf("preview should not touch the task: %s/%d", task.Status, task.ExecutionCount)
	}
	if f.events.count(domain.EventPreviewStep) != 2 || f.events.count(domain.EventPreviewFinished) != 1 {
		t.Error("expected preview events")
	}
	if f.engine.Closed() != 1 {
		t.Error("preview session should be released")
	}
}

func TestPreview_NoSteps(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "")

	if _, err := f.orch.Preview(context.Background(), 1); !errors.Is(err, ErrNoStepsConfigured) {
		t.Errorf("expected ErrNoStepsConfigured, got %v", err)
	}
}

// --- TaskStatus Tests ---

func TestTaskStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"), clickStep(2, "#b"))

	view, err := f.orch.TaskStatus(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Progress != 0 || view.TotalSteps != 2 {
		t.Errorf("pending task: unexpected view %+v", view)
	}

	if err := f.orch.Run(context.Background(), 1, "exec_1_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err = f.orch.TaskStatus(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Progress != 100 || view.Status != domain.TaskStatusCompleted {
		t.Errorf("completed task: unexpected view %+v", view)
	}
	if view.SuccessCount != 2 {
		t.Errorf("expected success count 2, got %d", view.SuccessCount)
	}
}

func TestTaskStatus_ActiveRun(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"))
	task := f.tasks.get(1)
	task.MarkRunning()
	f.tasks.put(task)

	state := NewRunState(1, "exec_1_1")
	state.SetTotalSteps(4)
	state.MarkStepFinished(domain.StepOutcome{Success: true})
	state.MarkStepStarted(1, &domain.AutomationStep{StepName: "second"})
	state.MarkStepFinished(domain.StepOutcome{Success: true})
	if err := f.orch.addActive(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := f.orch.TaskStatus(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Progress != 50 {
		t.Errorf("expected progress 50, got %v", view.Progress)
	}
	if view.CurrentStep != "second" || view.ExecutionID != "exec_1_1" {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestTaskStatus_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.orch.TaskStatus(context.Background(), 7); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

// --- History Tests ---

func TestHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.addTask(1, "", clickStep(1, "#a"))
	f.addTask(2, "", clickStep(1, "#a"))

	_ = f.orch.Run(context.Background(), 1, "exec_1_1")
	_ = f.orch.Run(context.Background(), 2, "exec_2_1")

	if got := f.orch.History(10); len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
	if got := f.orch.History(1); len(got) != 1 {
		t.Errorf("expected limit to apply, got %d", len(got))
	}

	if removed := f.orch.Prune(0); removed != 2 {
		t.Errorf("expected 2 pruned records, got %d", removed)
	}
}
