package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/editor"
	"github.com/shaiso/Webmata/internal/orchestrator"
	"github.com/shaiso/Webmata/internal/realtime"
	"github.com/shaiso/Webmata/internal/repo"
)

// TaskStore — хранилище задач (*repo.TaskRepo).
type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	Get(ctx context.Context, id int64) (*domain.Task, error)
	List(ctx context.Context, filter repo.TaskFilter) ([]domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*domain.TaskStats, error)
}

// StepStore — хранилище шагов (*repo.StepRepo).
type StepStore interface {
	Create(ctx context.Context, step *domain.AutomationStep) error
	Get(ctx context.Context, id int64) (*domain.AutomationStep, error)
	ListByTask(ctx context.Context, taskID int64) ([]domain.AutomationStep, error)
	Update(ctx context.Context, step *domain.AutomationStep) error
	Delete(ctx context.Context, id int64) error
}

// LogStore — журнал выполнения (*repo.LogRepo).
type LogStore interface {
	ListByTask(ctx context.Context, taskID int64, level domain.LogLevel, page repo.Page) ([]domain.ExecutionLog, error)
}

// Executions — управление выполнениями (*orchestrator.Orchestrator).
type Executions interface {
	Execute(ctx context.Context, taskID int64, opts orchestrator.RunOptions) (string, error)
	ExecuteBatch(ctx context.Context, taskIDs []int64) (string, error)
	TaskStatus(ctx context.Context, taskID int64) (*orchestrator.StatusView, error)
	StopTask(ctx context.Context, taskID int64) (bool, error)
	Preview(ctx context.Context, taskID int64) (string, error)
	PreviewResult(previewID string) (domain.ExecutionRecord, bool)
	ExecutionStatus(executionID string) (domain.ExecutionRecord, bool)
	History(limit int) []domain.ExecutionRecord
	StopExecution(executionID string) bool
}

// Browsers — реестр браузерных сессий (*browser.Registry).
type Browsers interface {
	Launch(ctx context.Context, cfg domain.BrowserConfig) (*browser.LaunchResult, error)
	Page(sessionID string) (browser.Page, error)
	Close(sessionID string) bool
	List() []domain.SessionInfo
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	taskRepo   TaskStore
	stepRepo   StepStore
	logRepo    LogStore
	executions Executions
	browsers   Browsers
	editor     *editor.Service
	hub        *realtime.Hub
	origins    []string
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	TaskRepo   TaskStore
	StepRepo   StepStore
	LogRepo    LogStore
	Executions Executions
	Browsers   Browsers
	Editor     *editor.Service
	Hub        *realtime.Hub

	// AllowedOrigins — origin, которым разрешены кросс-доменные запросы.
	AllowedOrigins []string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		taskRepo:   cfg.TaskRepo,
		stepRepo:   cfg.StepRepo,
		logRepo:    cfg.LogRepo,
		executions: cfg.Executions,
		browsers:   cfg.Browsers,
		editor:     cfg.Editor,
		hub:        cfg.Hub,
		origins:    cfg.AllowedOrigins,
		logger:     cfg.Logger,
	}
}
