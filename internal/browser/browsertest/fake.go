// Package browsertest содержит движок браузера в памяти для тестов.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/domain"
)

// ErrNavigation — ошибка навигации, которую возвращает FakePage.
var ErrNavigation = errors.New("net::ERR_NAME_NOT_RESOLVED")

// Action — действие, выполненное на FakePage.
type Action struct {
	Kind     string
	Selector string
	Value    string
}

// Engine — реализация browser.Engine в памяти.
type Engine struct {
	// LaunchErr — ошибка, которую вернёт NewSession.
	LaunchErr error

	// MissingSelectors — селекторы, для которых поиск элемента не удаётся.
	MissingSelectors map[string]bool

	// BadURLs — адреса, навигация на которые не удаётся.
	BadURLs map[string]bool

	// ActionDelay — задержка каждого действия на странице.
	ActionDelay time.Duration

	// CloseErr — ошибка закрытия браузера.
	CloseErr error

	mu       sync.Mutex
	pages    []*Page
	configs  []domain.BrowserConfig
	launched int
	closed   int
	shutdown bool
}

// NewEngine создаёт движок в памяти.
func NewEngine() *Engine {
	return &Engine{
		MissingSelectors: make(map[string]bool),
		BadURLs:          make(map[string]bool),
	}
}

// NewSession создаёт страницу в памяти.
func (e *Engine) NewSession(ctx context.Context, cfg domain.BrowserConfig) (*browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return nil, browser.ErrEngineClosed
	}
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}

	p := &Page{engine: e, url: "about:blank"}
	e.pages = append(e.pages, p)
	e.configs = append(e.configs, cfg)
	e.launched++

	return &browser.Handle{
		Page:    p,
		Context: browser.CloserFunc(func() error { return nil }),
		Browser: browser.CloserFunc(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.closed++
			return e.CloseErr
		}),
	}, nil
}

// Shutdown помечает движок остановленным.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
	return nil
}

// Launched возвращает количество запущенных сессий.
func (e *Engine) Launched() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launched
}

// Closed возвращает количество закрытых браузеров.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// IsShutdown возвращает true после Shutdown.
func (e *Engine) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

// Pages возвращает все созданные страницы.
func (e *Engine) Pages() []*Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Page(nil), e.pages...)
}

// Configs возвращает конфигурации всех запусков.
func (e *Engine) Configs() []domain.BrowserConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.BrowserConfig(nil), e.configs...)
}

// SetMissing помечает селектор как отсутствующий на странице.
func (e *Engine) SetMissing(selector string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.MissingSelectors[selector] = true
}

func (e *Engine) missing(selector string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.MissingSelectors[selector]
}

func (e *Engine) badURL(url string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.BadURLs[url]
}

func (e *Engine) delay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ActionDelay
}

// Page — реализация browser.Page в памяти.
type Page struct {
	engine *Engine

	mu      sync.Mutex
	url     string
	title   string
	actions []Action
	closed  bool
}

// Actions возвращает выполненные действия.
func (p *Page) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

// IsClosed возвращает true, если страница закрыта.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) record(kind, selector, value string) error {
	if d := p.engine.delay(); d > 0 {
		time.Sleep(d)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("target page, context or browser has been closed")
	}
	p.actions = append(p.actions, Action{Kind: kind, Selector: selector, Value: value})
	return nil
}

func (p *Page) element(kind, selector, value string) error {
	if p.engine.missing(selector) {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return p.record(kind, selector, value)
}

func (p *Page) Goto(url string, _ time.Duration) (int, error) {
	if p.engine.badURL(url) {
		return 0, fmt.Errorf("goto %s: %w", url, ErrNavigation)
	}
	if err := p.record("goto", "", url); err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.url = url
	p.title = "Page " + url
	p.mu.Unlock()
	return 200, nil
}

func (p *Page) Click(selector string, _ time.Duration) error {
	return p.element("click", selector, "")
}

func (p *Page) Fill(selector, text string, _ time.Duration) error {
	return p.element("fill", selector, text)
}

func (p *Page) Hover(selector string, _ time.Duration) error {
	return p.element("hover", selector, "")
}

func (p *Page) SelectOption(selector string, values []string, _ time.Duration) ([]string, error) {
	if err := p.element("select", selector, strings.Join(values, ",")); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *Page) SetInputFiles(selector string, files []string, _ time.Duration) error {
	return p.element("upload", selector, strings.Join(files, ","))
}

func (p *Page) DragAndDrop(source, target string, _ time.Duration) error {
	if p.engine.missing(target) {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, target)
	}
	return p.element("drag_drop", source, target)
}

func (p *Page) Evaluate(expression string, args ...any) (any, error) {
	if err := p.record("evaluate", "", expression); err != nil {
		return nil, err
	}
	if strings.Contains(expression, "innerWidth") {
		return map[string]any{"width": float64(1920), "height": float64(1080)}, nil
	}
	return nil, nil
}

func (p *Page) Screenshot(fullPage bool) ([]byte, error) {
	kind := "screenshot"
	if fullPage {
		kind = "screenshot_full"
	}
	if err := p.record(kind, "", ""); err != nil {
		return nil, err
	}
	// минимальный PNG-заголовок
	return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, nil
}

func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
