package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Webmata/internal/domain"
)

// SessionRepo — зеркало браузерных сессий в таблице browser_sessions.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo создаёт новый SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// CreateSession сохраняет запущенную сессию.
func (r *SessionRepo) CreateSession(ctx context.Context, info domain.SessionInfo) error {
	configJSON, err := json.Marshal(info.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO browser_sessions (session_id, browser_type, config, is_active,
		                              created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE
		SET is_active = EXCLUDED.is_active, last_activity = EXCLUDED.last_activity
	`
	_, err = r.pool.Exec(ctx, query,
		info.SessionID,
		info.BrowserType,
		configJSON,
		info.IsActive,
		info.CreatedAt,
		info.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("insert browser session: %w", err)
	}
	return nil
}

// DeactivateSession помечает сессию закрытой.
func (r *SessionRepo) DeactivateSession(ctx context.Context, sessionID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE browser_sessions
		SET is_active = FALSE, last_activity = now()
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("deactivate browser session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateAll помечает закрытыми все сессии.
// Вызывается при старте процесса: сессии прошлого процесса уже не существуют.
func (r *SessionRepo) DeactivateAll(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE browser_sessions SET is_active = FALSE WHERE is_active
	`)
	if err != nil {
		return 0, fmt.Errorf("deactivate browser sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

