package editor

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/shaiso/Webmata/internal/domain"
)

const snapshotNavTimeout = domain.DefaultStepTimeout * time.Second

// Snapshot — снимок страницы.
type Snapshot struct {
	SessionID        string         `json:"session_id"`
	URL              string         `json:"url"`
	ScreenshotBase64 string         `json:"screenshot_base64"`
	PageTitle        string         `json:"page_title"`
	Timestamp        time.Time      `json:"timestamp"`
	PageInfo         map[string]any `json:"page_info"`
}

// Snapshot открывает url в одноразовой браузерной сессии, ждёт
// SnapshotWait и снимает всю страницу. Сессия закрывается всегда.
func (s *Service) Snapshot(ctx context.Context, sessionID, url string) (*Snapshot, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id", ErrMissingParameter)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: url", ErrMissingParameter)
	}

	launched, err := s.browser.Launch(ctx, domain.BrowserConfig{})
	if err != nil {
		return nil, fmt.Errorf("launch snapshot browser: %w", err)
	}
	defer s.browser.Close(launched.SessionID)

	page, err := s.browser.Page(launched.SessionID)
	if err != nil {
		return nil, err
	}

	status, err := page.Goto(url, snapshotNavTimeout)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}

	if s.snapshotWait > 0 {
		timer := time.NewTimer(s.snapshotWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	shot, err := page.Screenshot(true)
	if err != nil {
		return nil, fmt.Errorf("take screenshot: %w", err)
	}

	title, err := page.Title()
	if err != nil {
		s.logger.Warn("failed to read page title", "url", url, "error", err)
	}

	s.logger.Info("page snapshot taken",
		"session_id", sessionID,
		"url", url,
		"bytes", len(shot),
	)
	return &Snapshot{
		SessionID:        sessionID,
		URL:              url,
		ScreenshotBase64: base64.StdEncoding.EncodeToString(shot),
		PageTitle:        title,
		Timestamp:        time.Now(),
		PageInfo: map[string]any{
			"title":       title,
			"url":         page.URL(),
			"status_code": status,
		},
	}, nil
}
