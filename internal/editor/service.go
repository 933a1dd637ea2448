package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/repo"
)

// DefaultSessionTTL — сессия считается активной, если была активность за этот срок.
const DefaultSessionTTL = time.Hour

// DefaultSnapshotWait — пауза после загрузки страницы перед снимком.
const DefaultSnapshotWait = 3 * time.Second

// Store — хранилище сессий редактора.
type Store interface {
	Create(ctx context.Context, s *domain.EditorSession) error
	Get(ctx context.Context, sessionID string) (*domain.EditorSession, error)
	ListActive(ctx context.Context, since time.Time) ([]domain.EditorSession, error)
	Update(ctx context.Context, s *domain.EditorSession) error
	SetRecording(ctx context.Context, sessionID string, rec *domain.Recording, currentURL string) error
	AppendSteps(ctx context.Context, sessionID string, steps []domain.RecordedStep) (int, error)
	ClearSteps(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

// StepStore — создание шагов задачи.
type StepStore interface {
	CreateMany(ctx context.Context, taskID int64, steps []domain.AutomationStep) error
}

// Browser — одноразовые сессии для снимков страниц.
type Browser interface {
	Launch(ctx context.Context, cfg domain.BrowserConfig) (*browser.LaunchResult, error)
	Page(sessionID string) (browser.Page, error)
	Close(sessionID string) bool
}

// Notifier — живой канал сессии редактора.
type Notifier interface {
	NotifyStepsRecorded(sessionID string, count, total int) bool
	Disconnect(sessionID string) bool
}

// Config — конфигурация Service.
type Config struct {
	Store    Store
	Steps    StepStore
	Browser  Browser
	Notifier Notifier

	// SessionTTL — окно активности для ListActive (по умолчанию 1 час).
	SessionTTL time.Duration

	// SnapshotWait — пауза перед снимком (по умолчанию 3 секунды).
	// Отрицательное значение отключает паузу.
	SnapshotWait time.Duration

	Logger *slog.Logger
}

// Service — визуальный редактор.
type Service struct {
	store        Store
	steps        StepStore
	browser      Browser
	notifier     Notifier
	sessionTTL   time.Duration
	snapshotWait time.Duration
	logger       *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.SnapshotWait == 0 {
		cfg.SnapshotWait = DefaultSnapshotWait
	}

	return &Service{
		store:        cfg.Store,
		steps:        cfg.Steps,
		browser:      cfg.Browser,
		notifier:     cfg.Notifier,
		sessionTTL:   cfg.SessionTTL,
		snapshotWait: cfg.SnapshotWait,
		logger:       cfg.Logger,
	}
}

// SessionTTL возвращает окно активности сессий.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// CreateSessionInput — параметры новой сессии.
type CreateSessionInput struct {
	Username string `json:"username,omitempty"`
	TaskID   *int64 `json:"task_id,omitempty"`
}

// CreateSession создаёт сессию редактора.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*domain.EditorSession, error) {
	now := time.Now()
	session := &domain.EditorSession{
		SessionID:     uuid.NewString(),
		Username:      in.Username,
		TaskID:        in.TaskID,
		RecordedSteps: []domain.RecordedStep{},
		IsAnonymous:   in.Username == "",
		CreatedAt:     now,
		LastActivity:  now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("editor session created", "session_id", session.SessionID)
	return session, nil
}

// GetSession возвращает сессию редактора.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.EditorSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, err
}

// UpdateSessionInput — изменяемые поля сессии. nil оставляет поле как есть.
type UpdateSessionInput struct {
	TaskID     *int64  `json:"task_id,omitempty"`
	CurrentURL *string `json:"current_url,omitempty"`
}

// UpdateSession меняет задачу или URL сессии.
func (s *Service) UpdateSession(ctx context.Context, sessionID string, in UpdateSessionInput) (*domain.EditorSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if in.TaskID != nil {
		session.TaskID = in.TaskID
	}
	if in.CurrentURL != nil {
		session.CurrentURL = *in.CurrentURL
	}

	if err := s.store.Update(ctx, session); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	return session, nil
}

// ListActive возвращает сессии с активностью за SessionTTL.
func (s *Service) ListActive(ctx context.Context) ([]domain.EditorSession, error) {
	return s.store.ListActive(ctx, time.Now().Add(-s.sessionTTL))
}

// CloseSession удаляет сессию и закрывает её живой канал.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	if s.notifier != nil {
		s.notifier.Disconnect(sessionID)
	}

	err := s.store.Delete(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return err
	}

	s.logger.Info("editor session closed", "session_id", sessionID)
	return nil
}

// RecordResult — итог сохранения записанных шагов.
type RecordResult struct {
	SessionID     string `json:"session_id"`
	RecordedSteps int    `json:"recorded_steps"`
	TotalSteps    int    `json:"total_steps"`
}

// RecordSteps проверяет и добавляет записанные шаги, затем уведомляет
// живой канал сессии.
func (s *Service) RecordSteps(ctx context.Context, sessionID string, steps []domain.RecordedStep) (*RecordResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id", ErrMissingParameter)
	}
	for i, step := range steps {
		if v := ValidateStep(step); !v.IsValid {
			return nil, fmt.Errorf("%w: step %d: %s", ErrInvalidStep, i+1, v.Errors[0])
		}
	}

	total, err := s.store.AppendSteps(ctx, sessionID, steps)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyStepsRecorded(sessionID, len(steps), total)
	}

	s.logger.Info("recorded steps saved",
		"session_id", sessionID,
		"steps", len(steps),
		"total", total,
	)
	return &RecordResult{
		SessionID:     sessionID,
		RecordedSteps: len(steps),
		TotalSteps:    total,
	}, nil
}

// Recordings возвращает записанные шаги сессии.
func (s *Service) Recordings(ctx context.Context, sessionID string) ([]domain.RecordedStep, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.RecordedSteps, nil
}

// ClearRecordings удаляет записанные шаги.
func (s *Service) ClearRecordings(ctx context.Context, sessionID string) error {
	err := s.store.ClearSteps(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return err
	}
	s.logger.Info("recorded steps cleared", "session_id", sessionID)
	return nil
}

// StartRecording запускает запись. Непустой targetURL становится текущим URL сессии.
func (s *Service) StartRecording(ctx context.Context, sessionID, targetURL string) (*domain.Recording, error) {
	rec := &domain.Recording{
		SessionID:   sessionID,
		TargetURL:   targetURL,
		IsRecording: true,
		StartedAt:   time.Now(),
	}

	err := s.store.SetRecording(ctx, sessionID, rec, targetURL)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("recording started", "session_id", sessionID, "target_url", targetURL)
	return rec, nil
}

// RecordingSummary — итог остановленной записи.
type RecordingSummary struct {
	SessionID string                `json:"session_id"`
	Duration  float64               `json:"duration"`
	StepCount int                   `json:"step_count"`
	Steps     []domain.RecordedStep `json:"steps"`
}

// StopRecording останавливает запись. Steps — шаги, записанные после старта.
func (s *Service) StopRecording(ctx context.Context, sessionID string) (*RecordingSummary, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec := session.Recording
	if rec == nil || !rec.IsRecording {
		return nil, fmt.Errorf("%w: %s", ErrNotRecording, sessionID)
	}

	now := time.Now()
	rec.IsRecording = false
	rec.StoppedAt = &now
	if err := s.store.SetRecording(ctx, sessionID, rec, ""); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}

	count := min(rec.StepCount, len(session.RecordedSteps))
	steps := session.RecordedSteps[len(session.RecordedSteps)-count:]

	duration := rec.Duration(now)
	s.logger.Info("recording stopped",
		"session_id", sessionID,
		"steps", count,
		"duration", duration,
	)
	return &RecordingSummary{
		SessionID: sessionID,
		Duration:  duration.Seconds(),
		StepCount: count,
		Steps:     steps,
	}, nil
}

// Convert создаёт шаги задачи taskID из записанных шагов сессии.
// Шаги добавляются в конец задачи.
func (s *Service) Convert(ctx context.Context, sessionID string, taskID int64) ([]domain.AutomationStep, error) {
	recorded, err := s.Recordings(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(recorded) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecordedSteps, sessionID)
	}

	steps := ToAutomationSteps(taskID, recorded)
	if err := s.steps.CreateMany(ctx, taskID, steps); err != nil {
		return nil, fmt.Errorf("create steps for task %d: %w", taskID, err)
	}

	s.logger.Info("recorded steps converted",
		"session_id", sessionID,
		"task_id", taskID,
		"steps", len(steps),
	)
	return steps, nil
}

// Export выгружает записанные шаги в формате json или automation.
func (s *Service) Export(ctx context.Context, sessionID string, format ExportFormat) (*Export, error) {
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatAutomation {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}

	recorded, err := s.Recordings(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(recorded) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecordedSteps, sessionID)
	}

	return buildExport(sessionID, format, recorded, time.Now()), nil
}

// Analytics возвращает сводку по записанным шагам сессии.
func (s *Service) Analytics(ctx context.Context, sessionID string) (*Analytics, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return analyze(session), nil
}

// OptimizeResult — записанные шаги после оптимизации.
type OptimizeResult struct {
	SessionID      string                `json:"session_id"`
	OriginalCount  int                   `json:"original_count"`
	OptimizedCount int                   `json:"optimized_count"`
	Steps          []domain.RecordedStep `json:"steps"`
}

// Optimize возвращает оптимизированную копию записи. Сохранённые шаги не меняются.
func (s *Service) Optimize(ctx context.Context, sessionID string) (*OptimizeResult, error) {
	recorded, err := s.Recordings(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	optimized := OptimizeSteps(recorded)
	s.logger.Debug("recorded steps optimized",
		"session_id", sessionID,
		"before", len(recorded),
		"after", len(optimized),
	)
	return &OptimizeResult{
		SessionID:      sessionID,
		OriginalCount:  len(recorded),
		OptimizedCount: len(optimized),
		Steps:          optimized,
	}, nil
}
