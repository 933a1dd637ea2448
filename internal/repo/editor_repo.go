package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Webmata/internal/domain"
)

// EditorRepo — репозиторий сессий визуального редактора (user_sessions).
type EditorRepo struct {
	pool *pgxpool.Pool
}

// NewEditorRepo создаёт новый EditorRepo.
func NewEditorRepo(pool *pgxpool.Pool) *EditorRepo {
	return &EditorRepo{pool: pool}
}

// tempData — содержимое колонки temp_data.
type tempData struct {
	RecordedSteps []domain.RecordedStep `json:"recorded_steps"`
	Recording     *domain.Recording     `json:"recording,omitempty"`
}

const editorColumns = `
	session_id, username, task_id, current_url, temp_data, is_anonymous,
	created_at, last_activity
`

// Create сохраняет новую сессию редактора.
func (r *EditorRepo) Create(ctx context.Context, s *domain.EditorSession) error {
	data, err := encodeTempData(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO user_sessions (session_id, username, task_id, current_url,
		                           temp_data, is_anonymous, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		s.SessionID,
		s.Username,
		nullInt64(s.TaskID),
		s.CurrentURL,
		data,
		s.IsAnonymous,
		s.CreatedAt,
		s.LastActivity,
	)
	if err != nil {
		return insertError("editor session "+s.SessionID, err)
	}
	return nil
}

// Get возвращает сессию редактора.
func (r *EditorRepo) Get(ctx context.Context, sessionID string) (*domain.EditorSession, error) {
	query := `SELECT ` + editorColumns + ` FROM user_sessions WHERE session_id = $1`
	return scanEditorSession(r.pool.QueryRow(ctx, query, sessionID))
}

// ListActive возвращает сессии с активностью после since, последние первыми.
func (r *EditorRepo) ListActive(ctx context.Context, since time.Time) ([]domain.EditorSession, error) {
	query := `
		SELECT ` + editorColumns + `
		FROM user_sessions
		WHERE last_activity >= $1
		ORDER BY last_activity DESC
	`
	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list editor sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.EditorSession{}
	for rows.Next() {
		s, err := scanEditorSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Update сохраняет задачу и текущий URL сессии. last_activity обновляется.
// Шаги и состояние записи меняются только через AppendSteps, ClearSteps
// и SetRecording.
func (r *EditorRepo) Update(ctx context.Context, s *domain.EditorSession) error {
	now := time.Now()
	result, err := r.pool.Exec(ctx, `
		UPDATE user_sessions
		SET task_id = $2, current_url = $3, last_activity = $4
		WHERE session_id = $1
	`, s.SessionID, nullInt64(s.TaskID), s.CurrentURL, now)
	if err != nil {
		return fmt.Errorf("update editor session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.LastActivity = now
	return nil
}

// SetRecording сохраняет состояние записи. Непустой currentURL заменяет
// текущий URL сессии.
func (r *EditorRepo) SetRecording(ctx context.Context, sessionID string, rec *domain.Recording, currentURL string) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recording: %w", err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE user_sessions
		SET temp_data = jsonb_set(temp_data, '{recording}', $2::jsonb),
		    current_url = COALESCE($3, current_url),
		    last_activity = now()
		WHERE session_id = $1
	`, sessionID, recJSON, nullString(currentURL))
	if err != nil {
		return fmt.Errorf("set recording: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendSteps атомарно добавляет шаги к записанным. Если идёт запись,
// её счётчик шагов увеличивается.
// Возвращает общее количество шагов в сессии.
func (r *EditorRepo) AppendSteps(ctx context.Context, sessionID string, steps []domain.RecordedStep) (int, error) {
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return 0, fmt.Errorf("marshal recorded steps: %w", err)
	}

	var total int
	err = r.pool.QueryRow(ctx, `
		WITH appended AS (
			SELECT session_id,
			       jsonb_set(
			           temp_data,
			           '{recorded_steps}',
			           COALESCE(temp_data->'recorded_steps', '[]'::jsonb) || $2::jsonb
			       ) AS data
			FROM user_sessions
			WHERE session_id = $1
			FOR UPDATE
		)
		UPDATE user_sessions u
		SET temp_data = CASE
		        WHEN (a.data #>> '{recording,is_recording}')::boolean IS TRUE
		        THEN jsonb_set(a.data, '{recording,step_count}',
		                 to_jsonb(COALESCE((a.data #>> '{recording,step_count}')::int, 0) + $3::int))
		        ELSE a.data
		    END,
		    last_activity = now()
		FROM appended a
		WHERE u.session_id = a.session_id
		RETURNING jsonb_array_length(u.temp_data->'recorded_steps')
	`, sessionID, stepsJSON, len(steps)).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("append recorded steps: %w", err)
	}
	return total, nil
}

// ClearSteps удаляет записанные шаги сессии.
func (r *EditorRepo) ClearSteps(ctx context.Context, sessionID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE user_sessions
		SET temp_data = jsonb_set(temp_data, '{recorded_steps}', '[]'::jsonb),
		    last_activity = now()
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("clear recorded steps: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет сессию редактора.
func (r *EditorRepo) Delete(ctx context.Context, sessionID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete editor session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInactive удаляет сессии без активности с момента before.
func (r *EditorRepo) DeleteInactive(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE last_activity < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete inactive editor sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

func encodeTempData(s *domain.EditorSession) ([]byte, error) {
	data := tempData{
		RecordedSteps: s.RecordedSteps,
		Recording:     s.Recording,
	}
	if data.RecordedSteps == nil {
		data.RecordedSteps = []domain.RecordedStep{}
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal temp_data: %w", err)
	}
	return out, nil
}

func scanEditorSession(row pgx.Row) (*domain.EditorSession, error) {
	var s domain.EditorSession
	var dataJSON []byte

	err := row.Scan(
		&s.SessionID,
		&s.Username,
		&s.TaskID,
		&s.CurrentURL,
		&dataJSON,
		&s.IsAnonymous,
		&s.CreatedAt,
		&s.LastActivity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan editor session: %w", err)
	}

	var data tempData
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &data); err != nil {
			return nil, fmt.Errorf("unmarshal temp_data: %w", err)
		}
	}
	s.RecordedSteps = data.RecordedSteps
	if s.RecordedSteps == nil {
		s.RecordedSteps = []domain.RecordedStep{}
	}
	s.Recording = data.Recording
	return &s, nil
}
