package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BrowserType — движок браузера.
type BrowserType string

const (
	BrowserChromium BrowserType = "chromium"
	BrowserFirefox  BrowserType = "firefox"
	BrowserWebKit   BrowserType = "webkit"
)

// ParseBrowserType нормализует имя браузера.
// chrome и edge — синонимы chromium, пустая строка — chromium.
func ParseBrowserType(s string) (BrowserType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chromium", "chrome", "edge":
		return BrowserChromium, nil
	case "firefox":
		return BrowserFirefox, nil
	case "webkit", "safari":
		return BrowserWebKit, nil
	default:
		return "", fmt.Errorf("unsupported browser type %q", s)
	}
}

// DefaultWindowSize — размер окна по умолчанию.
const DefaultWindowSize = "1920x1080"

// BrowserConfig — параметры запуска браузерной сессии.
type BrowserConfig struct {
	// BrowserType — движок (chromium, firefox, webkit).
	BrowserType BrowserType `json:"browser_type" yaml:"browser_type"`

	// Headless — запуск без окна. Nil означает значение по умолчанию.
	Headless *bool `json:"headless,omitempty" yaml:"headless,omitempty"`

	// WindowSize — размер окна в формате "WxH".
	WindowSize string `json:"window_size,omitempty" yaml:"window_size,omitempty"`

	// UserAgent — переопределение User-Agent.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// ProxyURL — адрес прокси-сервера.
	ProxyURL string `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty"`

	// Timeout — таймаут по умолчанию для действий на странице, секунды.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Merge накладывает непустые поля cfg поверх c и возвращает результат.
func (c BrowserConfig) Merge(cfg BrowserConfig) BrowserConfig {
	out := c
	if cfg.BrowserType != "" {
		out.BrowserType = cfg.BrowserType
	}
	if cfg.Headless != nil {
		h := *cfg.Headless
		out.Headless = &h
	}
	if cfg.WindowSize != "" {
		out.WindowSize = cfg.WindowSize
	}
	if cfg.UserAgent != "" {
		out.UserAgent = cfg.UserAgent
	}
	if cfg.ProxyURL != "" {
		out.ProxyURL = cfg.ProxyURL
	}
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	return out
}

// IsHeadless возвращает значение Headless (true, если не задано).
func (c BrowserConfig) IsHeadless() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}

// ParseWindowSize разбирает строку "WxH".
func ParseWindowSize(s string) (width, height int, err error) {
	if s == "" {
		s = DefaultWindowSize
	}
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("window size %q: expected WxH", s)
	}
	width, err = strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("window size %q: invalid width", s)
	}
	height, err = strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("window size %q: invalid height", s)
	}
	return width, height, nil
}

// SessionInfo — сведения о браузерной сессии (без живых объектов).
//
// Используется для listActiveSessions и зеркалируется в таблицу browser_sessions.
type SessionInfo struct {
	SessionID    string        `json:"session_id"`
	BrowserType  BrowserType   `json:"browser_type"`
	Config       BrowserConfig `json:"config"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// IdleFor возвращает время простоя сессии относительно now.
func (s SessionInfo) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}
