package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/telemetry"
)

// DefaultControlURLBase — базовый адрес канала управления сессией.
const DefaultControlURLBase = "ws://localhost:8000/ws"

// storeTimeout — таймаут записи в хранилище сессий.
const storeTimeout = 5 * time.Second

// Store — хранилище сведений о сессиях (таблица browser_sessions).
type Store interface {
	CreateSession(ctx context.Context, info domain.SessionInfo) error
	DeactivateSession(ctx context.Context, sessionID string) error
}

// Config — конфигурация реестра.
type Config struct {
	// Engine — движок браузера. Обязателен.
	Engine Engine

	// Store — хранилище сессий (опционально).
	Store Store

	// ControlURLBase — база для control_url. По умолчанию ws://localhost:8000/ws.
	ControlURLBase string

	// Defaults — конфигурация браузера по умолчанию.
	Defaults domain.BrowserConfig

	Logger *slog.Logger
}

// Session — зарегистрированная браузерная сессия.
type Session struct {
	ID        string
	Config    domain.BrowserConfig
	Handle    *Handle
	CreatedAt time.Time

	lastActivity time.Time
}

// Page возвращает страницу сессии.
func (s *Session) Page() Page {
	return s.Handle.Page
}

// LaunchResult — результат запуска браузера.
type LaunchResult struct {
	SessionID   string             `json:"session_id"`
	BrowserType domain.BrowserType `json:"browser_type"`
	ControlURL  string             `json:"control_url"`
	Status      string             `json:"status"`
}

// Registry — реестр живых браузерных сессий.
type Registry struct {
	engine         Engine
	store          Store
	controlURLBase string
	defaults       domain.BrowserConfig
	logger         *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry создаёт реестр.
func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ControlURLBase == "" {
		cfg.ControlURLBase = DefaultControlURLBase
	}
	if cfg.Defaults.BrowserType == "" {
		cfg.Defaults.BrowserType = domain.BrowserChromium
	}
	if cfg.Defaults.WindowSize == "" {
		cfg.Defaults.WindowSize = domain.DefaultWindowSize
	}
	if cfg.Defaults.Timeout <= 0 {
		cfg.Defaults.Timeout = domain.DefaultStepTimeout
	}

	return &Registry{
		engine:         cfg.Engine,
		store:          cfg.Store,
		controlURLBase: strings.TrimRight(cfg.ControlURLBase, "/"),
		defaults:       cfg.Defaults,
		logger:         cfg.Logger,
		sessions:       make(map[string]*Session),
	}
}

// Defaults возвращает конфигурацию браузера по умолчанию.
func (r *Registry) Defaults() domain.BrowserConfig {
	return r.defaults
}

// Resolve накладывает cfg на значения по умолчанию и проверяет результат.
func (r *Registry) Resolve(cfg domain.BrowserConfig) (domain.BrowserConfig, error) {
	merged := r.defaults.Merge(cfg)

	bt, err := domain.ParseBrowserType(string(merged.BrowserType))
	if err != nil {
		return merged, fmt.Errorf("%w: %s", ErrUnsupportedBrowser, merged.BrowserType)
	}
	merged.BrowserType = bt

	if _, _, err := domain.ParseWindowSize(merged.WindowSize); err != nil {
		return merged, fmt.Errorf("%w: %s", ErrInvalidWindowSize, merged.WindowSize)
	}

	if merged.Headless == nil {
		h := true
		merged.Headless = &h
	}

	return merged, nil
}

// Launch запускает браузер и регистрирует новую сессию.
func (r *Registry) Launch(ctx context.Context, cfg domain.BrowserConfig) (*LaunchResult, error) {
	resolved, err := r.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	handle, err := r.engine.NewSession(ctx, resolved)
	if err != nil {
		telemetry.BrowserLaunchesTotal.WithLabelValues(string(resolved.BrowserType), "failure").Inc()
		return nil, fmt.Errorf("launch %s: %w", resolved.BrowserType, err)
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.NewString(),
		Config:       resolved,
		Handle:       handle,
		CreatedAt:    now,
		lastActivity: now,
	}

	info := r.info(session, true)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = handle.Close()
		return nil, ErrEngineClosed
	}
	r.sessions[session.ID] = session
	r.mu.Unlock()

	telemetry.BrowserLaunchesTotal.WithLabelValues(string(resolved.BrowserType), "success").Inc()
	telemetry.BrowserSessionsActive.Inc()

	if r.store != nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		if err := r.store.CreateSession(storeCtx, info); err != nil {
			r.logger.Warn("failed to persist browser session",
				"session_id", session.ID,
				"error", err,
			)
		}
		cancel()
	}

	r.logger.Info("browser session launched",
		"session_id", session.ID,
		"browser_type", resolved.BrowserType,
		"headless", resolved.IsHeadless(),
		"window_size", resolved.WindowSize,
	)

	return &LaunchResult{
		SessionID:   session.ID,
		BrowserType: resolved.BrowserType,
		ControlURL:  r.controlURLBase + "/" + session.ID,
		Status:      "launched",
	}, nil
}

// Get возвращает сессию по идентификатору.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// Page возвращает страницу сессии и отмечает активность.
func (r *Registry) Page(sessionID string) (Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.lastActivity = time.Now()
	return s.Handle.Page, nil
}

// Touch обновляет время последней активности сессии.
func (r *Registry) Touch(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.lastActivity = time.Now()
	return true
}

// Close закрывает сессию. Возвращает false, если сессия неизвестна.
func (r *Registry) Close(sessionID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.release(s)
	return true
}

// release закрывает объекты сессии и помечает её неактивной в хранилище.
func (r *Registry) release(s *Session) {
	telemetry.BrowserSessionsActive.Dec()

	if err := s.Handle.Close(); err != nil {
		r.logger.Warn("browser session closed with errors",
			"session_id", s.ID,
			"error", err,
		)
	} else {
		r.logger.Info("browser session closed", "session_id", s.ID)
	}

	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := r.store.DeactivateSession(ctx, s.ID); err != nil {
			r.logger.Warn("failed to deactivate browser session",
				"session_id", s.ID,
				"error", err,
			)
		}
	}
}

// CloseAll закрывает все сессии и останавливает движок.
// Используется только при остановке процесса.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		r.release(s)
	}

	r.logger.Info("all browser sessions closed", "count", len(sessions))

	if err := r.engine.Shutdown(); err != nil {
		return fmt.Errorf("shutdown browser engine: %w", err)
	}
	return nil
}

// CleanupIdle закрывает сессии, простаивающие дольше maxIdle.
// Возвращает количество закрытых сессий.
func (r *Registry) CleanupIdle(maxIdle time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if now.Sub(s.lastActivity) > maxIdle {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.logger.Info("closing idle browser session",
			"session_id", s.ID,
			"idle", now.Sub(s.lastActivity).Round(time.Second).String(),
		)
		r.release(s)
	}

	return len(idle)
}

// List возвращает сведения об открытых сессиях, старые первыми.
func (r *Registry) List() []domain.SessionInfo {
	r.mu.Lock()
	infos := make([]domain.SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, r.info(s, true))
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len возвращает количество открытых сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) info(s *Session, active bool) domain.SessionInfo {
	return domain.SessionInfo{
		SessionID:    s.ID,
		BrowserType:  s.Config.BrowserType,
		Config:       s.Config,
		IsActive:     active,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
}
