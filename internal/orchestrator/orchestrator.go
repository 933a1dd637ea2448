package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/executor"
	"github.com/shaiso/Webmata/internal/repo"
	"github.com/shaiso/Webmata/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxConcurrent = 5
	defaultPreviewDelay  = 2 * time.Second
	storeTimeout         = 10 * time.Second
)

// stopReason — пометка задачи, остановленной пользователем.
const stopReason = "stopped by user"

// TaskStore — доступ к задачам.
type TaskStore interface {
	Get(ctx context.Context, id int64) (*domain.Task, error)

	// UpdateExecution сохраняет статус, время, пометку, результат и счётчики.
	UpdateExecution(ctx context.Context, task *domain.Task) error
}

// StepStore — доступ к шагам задачи.
type StepStore interface {
	// ListByTask возвращает шаги задачи по возрастанию step_order.
	ListByTask(ctx context.Context, taskID int64) ([]domain.AutomationStep, error)
}

// Sessions — реестр браузерных сессий.
type Sessions interface {
	Launch(ctx context.Context, cfg domain.BrowserConfig) (*browser.LaunchResult, error)
	Page(sessionID string) (browser.Page, error)
	Close(sessionID string) bool
}

// StepRunner выполняет один шаг.
type StepRunner interface {
	Execute(ctx context.Context, step *domain.AutomationStep, sessionID string) (*executor.ActionResult, error)
}

// RunOptions — параметры запуска задачи.
type RunOptions struct {
	// ForceRestart — запустить задачу в статусе running, если в этом
	// процессе у неё нет выполнения (например, после падения процесса).
	ForceRestart bool
}

// Orchestrator управляет выполнением задач.
type Orchestrator struct {
	tasks    TaskStore
	steps    StepStore
	sessions Sessions
	runner   StepRunner
	logs     executor.LogSink
	events   EventSink

	policy        CompletionPolicy
	maxConcurrent int
	taskTimeout   time.Duration
	previewDelay  time.Duration

	// Per-task мьютексы для атомарной смены статуса.
	taskLocks map[int64]*sync.Mutex
	locksMu   sync.Mutex

	// Активные выполнения (taskID → state), записи batch/preview, история.
	active         map[int64]*RunState
	records        map[string]*domain.ExecutionRecord
	previews       map[string]context.CancelFunc
	stoppedBatches map[string]bool
	history        []domain.ExecutionRecord
	mu             sync.RWMutex

	// Lifecycle
	logger     *slog.Logger
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Tasks    TaskStore
	Steps    StepStore
	Sessions Sessions
	Runner   StepRunner

	// Logs — журнал выполнения (опционально).
	Logs executor.LogSink

	// Events — подписчик на события (опционально).
	Events EventSink

	// Policy — правило финального статуса.
	Policy CompletionPolicy

	// MaxConcurrent — параллельность batch (default: 5, <0 — без ограничения).
	MaxConcurrent int

	// TaskTimeout — дедлайн выполнения, проверяется на границе шагов (0 — нет).
	TaskTimeout time.Duration

	// PreviewDelay — пауза между шагами предпросмотра (default: 2s).
	PreviewDelay time.Duration

	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	previewDelay := cfg.PreviewDelay
	if previewDelay < 0 {
		previewDelay = 0
	} else if previewDelay == 0 {
		previewDelay = defaultPreviewDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		tasks:          cfg.Tasks,
		steps:          cfg.Steps,
		sessions:       cfg.Sessions,
		runner:         cfg.Runner,
		logs:           cfg.Logs,
		events:         cfg.Events,
		policy:         cfg.Policy,
		maxConcurrent:  maxConcurrent,
		taskTimeout:    cfg.TaskTimeout,
		previewDelay:   previewDelay,
		taskLocks:      make(map[int64]*sync.Mutex),
		active:         make(map[int64]*RunState),
		records:        make(map[string]*domain.ExecutionRecord),
		previews:       make(map[string]context.CancelFunc),
		stoppedBatches: make(map[string]bool),
		logger:         logger,
		baseCtx:        baseCtx,
		cancelFunc:     cancel,
	}
}

// Start привязывает фоновые выполнения к ctx.
// Вызывается один раз при старте процесса.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	prev := o.cancelFunc
	o.baseCtx = runCtx
	o.cancelFunc = func() {
		cancel()
		prev()
	}

	o.logger.Info("orchestrator started",
		"max_concurrent", o.maxConcurrent,
		"task_timeout", o.taskTimeout,
		"min_success_ratio", o.policy.MinSuccessRatio,
	)
	return nil
}

// Stop отменяет фоновые выполнения и ждёт их завершения.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// spawn запускает фоновую горутину под учётом wg.
func (o *Orchestrator) spawn(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.baseCtx)
	}()
}

// lockTask захватывает мьютекс задачи.
func (o *Orchestrator) lockTask(taskID int64) func() {
	o.locksMu.Lock()
	m, ok := o.taskLocks[taskID]
	if !ok {
		m = &sync.Mutex{}
		o.taskLocks[taskID] = m
	}
	o.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// loadTask загружает задачу, ErrNotFound превращается в ErrTaskNotFound.
func (o *Orchestrator) loadTask(ctx context.Context, taskID int64) (*domain.Task, error) {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("load task %d: %w", taskID, err)
	}
	return task, nil
}

// Execute захватывает задачу и запускает выполнение в фоне.
// Возвращает идентификатор выполнения.
func (o *Orchestrator) Execute(ctx context.Context, taskID int64, opts RunOptions) (string, error) {
	if o.IsStopped() {
		return "", ErrOrchestratorStopped
	}

	executionID := domain.NewExecutionID(taskID, time.Now())

	task, state, err := o.claim(ctx, taskID, executionID, opts)
	if err != nil {
		return "", err
	}

	o.spawn(func(ctx context.Context) {
		_, _ = o.runClaimed(ctx, task, state)
	})

	return executionID, nil
}

// Run выполняет задачу синхронно.
func (o *Orchestrator) Run(ctx context.Context, taskID int64, executionID string) error {
	_, err := o.run(ctx, taskID, executionID, RunOptions{})
	return err
}

// run захватывает и выполняет задачу, возвращает финальный статус.
func (o *Orchestrator) run(ctx context.Context, taskID int64, executionID string, opts RunOptions) (domain.TaskStatus, error) {
	task, state, err := o.claim(ctx, taskID, executionID, opts)
	if err != nil {
		return "", err
	}
	return o.runClaimed(ctx, task, state)
}

// claim переводит задачу в running и регистрирует выполнение.
func (o *Orchestrator) claim(ctx context.Context, taskID int64, executionID string, opts RunOptions) (*domain.Task, *RunState, error) {
	unlock := o.lockTask(taskID)
	defer unlock()

	task, err := o.loadTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	if o.isActive(taskID) {
		return nil, nil, fmt.Errorf("%w: %d", ErrTaskAlreadyRunning, taskID)
	}
	if task.Status == domain.TaskStatusRunning && !opts.ForceRestart {
		return nil, nil, fmt.Errorf("%w: %d", ErrTaskAlreadyRunning, taskID)
	}

	task.MarkRunning()
	if err := o.tasks.UpdateExecution(ctx, task); err != nil {
		return nil, nil, fmt.Errorf("mark task %d running: %w", taskID, err)
	}

	state := NewRunState(taskID, executionID)
	if err := o.addActive(state); err != nil {
		return nil, nil, fmt.Errorf("%w: %d", err, taskID)
	}

	telemetry.ExecutionsRunning.Inc()

	o.logger.Info("task claimed",
		"task_id", taskID,
		"execution_id", executionID,
		"force_restart", opts.ForceRestart,
	)
	o.emit(ctx, domain.NewEvent(domain.EventExecutionStarted, executionID, taskID, map[string]any{
		"task_name": task.Name,
	}))

	return task, state, nil
}

// StopTask останавливает задачу в статусе running или pending.
//
// Задача переходит в cancelled, выполнение останавливается перед
// следующим шагом. Возвращает false, если задачу нельзя остановить.
func (o *Orchestrator) StopTask(ctx context.Context, taskID int64) (bool, error) {
	unlock := o.lockTask(taskID)
	defer unlock()

	task, err := o.loadTask(ctx, taskID)
	if err != nil {
		return false, err
	}

	state := o.getActive(taskID)
	if !task.CanStop() && state == nil {
		return false, nil
	}

	if state != nil {
		state.Cancel(stopReason)
	}

	task.MarkCancelled(stopReason)
	if err := o.tasks.UpdateExecution(ctx, task); err != nil {
		return false, fmt.Errorf("mark task %d cancelled: %w", taskID, err)
	}

	o.logger.Info("task stopped", "task_id", taskID, "had_run", state != nil)
	o.appendLog(ctx, taskID, domain.LogLevelWarning, "task stopped by user")
	return true, nil
}

// cancelRun останавливает выполнение из StopExecution.
func (o *Orchestrator) cancelRun(state *RunState, reason string) {
	ctx, cancel := context.WithTimeout(o.baseCtx, storeTimeout)
	defer cancel()

	state.Cancel(reason)
	if _, err := o.StopTask(ctx, state.TaskID); err != nil {
		o.logger.Warn("failed to stop task",
			"task_id", state.TaskID,
			"execution_id", state.ExecutionID,
			"error", err,
		)
	}
}

// appendLog пишет запись уровня задачи в журнал выполнения.
func (o *Orchestrator) appendLog(ctx context.Context, taskID int64, level domain.LogLevel, msg string) {
	if o.logs == nil {
		return
	}

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	entry := &domain.ExecutionLog{
		TaskID:    taskID,
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
	}
	if err := o.logs.AppendLog(logCtx, entry); err != nil {
		o.logger.Warn("failed to append execution log", "task_id", taskID, "error", err)
	}
}
