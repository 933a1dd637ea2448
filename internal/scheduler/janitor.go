package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Webmata/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultSessionIdle     = 30 * time.Minute
	DefaultEditorRetention = 24 * time.Hour
	DefaultRecordRetention = time.Hour
)

// Имена заданий (метка job в метриках).
const (
	JobBrowserSessions = "browser_sessions"
	JobEditorSessions  = "editor_sessions"
	JobExecutions      = "executions"
)

// SessionSweeper закрывает простаивающие браузерные сессии.
type SessionSweeper interface {
	CleanupIdle(maxIdle time.Duration) int
}

// EditorSweeper удаляет неактивные сессии редактора.
type EditorSweeper interface {
	DeleteInactive(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionSweeper удаляет завершённые записи выполнений.
type ExecutionSweeper interface {
	Prune(maxAge time.Duration) int
}

// Config — конфигурация Janitor. Незаданный sweeper пропускается.
type Config struct {
	// Spec — cron-выражение (по умолчанию каждые 5 минут).
	Spec string

	Sessions   SessionSweeper
	Editor     EditorSweeper
	Executions ExecutionSweeper

	SessionIdle     time.Duration
	EditorRetention time.Duration
	RecordRetention time.Duration

	Logger *slog.Logger
}

// Janitor — периодическое обслуживание.
type Janitor struct {
	spec       string
	sessions   SessionSweeper
	editor     EditorSweeper
	executions ExecutionSweeper

	sessionIdle     time.Duration
	editorRetention time.Duration
	recordRetention time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Janitor.
func New(cfg Config) *Janitor {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = DefaultSessionIdle
	}
	if cfg.EditorRetention <= 0 {
		cfg.EditorRetention = DefaultEditorRetention
	}
	if cfg.RecordRetention <= 0 {
		cfg.RecordRetention = DefaultRecordRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Janitor{
		spec:            cfg.Spec,
		sessions:        cfg.Sessions,
		editor:          cfg.Editor,
		executions:      cfg.Executions,
		sessionIdle:     cfg.SessionIdle,
		editorRetention: cfg.EditorRetention,
		recordRetention: cfg.RecordRetention,
		logger:          cfg.Logger,
		now:             time.Now,
	}
}

// Sweep — итог одного прохода.
type Sweep struct {
	BrowserSessions int
	EditorSessions  int64
	Executions      int
	Errors          []error
}

// Tick выполняет все задания один раз.
func (j *Janitor) Tick(ctx context.Context) Sweep {
	var sw Sweep

	if j.sessions != nil {
		sw.BrowserSessions = j.sessions.CleanupIdle(j.sessionIdle)
		j.record(JobBrowserSessions, sw.BrowserSessions, nil)
	}

	if j.editor != nil {
		n, err := j.editor.DeleteInactive(ctx, j.now().Add(-j.editorRetention))
		if err != nil {
			err = fmt.Errorf("expire editor sessions: %w", err)
			sw.Errors = append(sw.Errors, err)
		}
		sw.EditorSessions = n
		j.record(JobEditorSessions, int(n), err)
	}

	if j.executions != nil {
		sw.Executions = j.executions.Prune(j.recordRetention)
		j.record(JobExecutions, sw.Executions, nil)
	}

	j.logger.Debug("janitor sweep completed",
		"browser_sessions", sw.BrowserSessions,
		"editor_sessions", sw.EditorSessions,
		"executions", sw.Executions,
		"errors", len(sw.Errors),
	)
	return sw
}

func (j *Janitor) record(job string, removed int, err error) {
	telemetry.JanitorRunsTotal.WithLabelValues(job, telemetry.Result(err == nil)).Inc()
	if removed > 0 {
		telemetry.JanitorRemovedTotal.WithLabelValues(job).Add(float64(removed))
		j.logger.Info("janitor removed objects", "job", job, "count", removed)
	}
	if err != nil {
		j.logger.Error("janitor job failed", "job", job, "error", err)
	}
}

// Run запускает janitor по расписанию и блокирует до отмены ctx.
// Выполняющийся проход дожидается завершения.
func (j *Janitor) Run(ctx context.Context) error {
	if err := ValidateCronExpr(j.spec); err != nil {
		return err
	}

	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.spec, func() { j.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}

	c.Start()
	next, _ := NextRun(j.spec, j.now())
	j.logger.Info("janitor started", "spec", j.spec, "next_run", next)

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("janitor stopped")
	return nil
}
