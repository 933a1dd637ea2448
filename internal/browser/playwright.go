package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/shaiso/Webmata/internal/domain"
)

// chromiumArgs — аргументы запуска chromium в контейнере.
var chromiumArgs = []string{"--no-sandbox", "--disable-setuid-sandbox"}

// PlaywrightConfig — конфигурация движка playwright.
type PlaywrightConfig struct {
	// Install — скачать браузеры и драйвер перед первым запуском.
	Install bool

	Logger *slog.Logger
}

// PlaywrightEngine — Engine на основе playwright-go.
//
// Драйвер запускается лениво при первом NewSession и один раз на процесс.
type PlaywrightEngine struct {
	install bool
	logger  *slog.Logger

	mu     sync.Mutex
	pw     *playwright.Playwright
	closed bool
}

// NewPlaywrightEngine создаёт движок. Драйвер не запускается до первой сессии.
func NewPlaywrightEngine(cfg PlaywrightConfig) *PlaywrightEngine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PlaywrightEngine{
		install: cfg.Install,
		logger:  cfg.Logger,
	}
}

// start запускает драйвер, если он ещё не запущен.
func (e *PlaywrightEngine) start() (*playwright.Playwright, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if e.pw != nil {
		return e.pw, nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if e.install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	e.pw = pw
	e.logger.Info("playwright driver started")
	return pw, nil
}

// NewSession запускает браузер, контекст и страницу.
func (e *PlaywrightEngine) NewSession(ctx context.Context, cfg domain.BrowserConfig) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := e.start()
	if err != nil {
		return nil, err
	}

	var bt playwright.BrowserType
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.IsHeadless()),
	}
	switch cfg.BrowserType {
	case domain.BrowserChromium, "":
		bt = pw.Chromium
		launchOpts.Args = chromiumArgs
	case domain.BrowserFirefox:
		bt = pw.Firefox
	case domain.BrowserWebKit:
		bt = pw.WebKit
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBrowser, cfg.BrowserType)
	}
	if cfg.ProxyURL != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: cfg.ProxyURL}
	}

	width, height, err := domain.ParseWindowSize(cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWindowSize, cfg.WindowSize)
	}

	browser, err := bt.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: width, Height: height},
	}
	if cfg.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(cfg.UserAgent)
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultStepTimeout
	}
	page.SetDefaultTimeout(float64(timeout * 1000))

	return &Handle{
		Page:    &playwrightPage{page: page},
		Context: CloserFunc(func() error { return bctx.Close() }),
		Browser: CloserFunc(func() error { return browser.Close() }),
	}, nil
}

// Shutdown останавливает драйвер playwright.
func (e *PlaywrightEngine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.pw == nil {
		return nil
	}
	if err := e.pw.Stop(); err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	e.logger.Info("playwright driver stopped")
	return nil
}

// playwrightPage — реализация Page поверх playwright.Page.
type playwrightPage struct {
	page playwright.Page
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// elementErr превращает таймаут поиска элемента в ErrElementNotFound.
func elementErr(selector string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return err
}

func (p *playwrightPage) Goto(url string, timeout time.Duration) (int, error) {
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: ms(timeout)})
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *playwrightPage) Click(selector string, timeout time.Duration) error {
	return elementErr(selector, p.page.Click(selector, playwright.PageClickOptions{Timeout: ms(timeout)}))
}

func (p *playwrightPage) Fill(selector, text string, timeout time.Duration) error {
	return elementErr(selector, p.page.Fill(selector, text, playwright.PageFillOptions{Timeout: ms(timeout)}))
}

func (p *playwrightPage) Hover(selector string, timeout time.Duration) error {
	return elementErr(selector, p.page.Hover(selector, playwright.PageHoverOptions{Timeout: ms(timeout)}))
}

func (p *playwrightPage) SelectOption(selector string, values []string, timeout time.Duration) ([]string, error) {
	selected, err := p.page.SelectOption(selector,
		playwright.SelectOptionValues{Values: &values},
		playwright.PageSelectOptionOptions{Timeout: ms(timeout)},
	)
	return selected, elementErr(selector, err)
}

func (p *playwrightPage) SetInputFiles(selector string, files []string, timeout time.Duration) error {
	return elementErr(selector, p.page.SetInputFiles(selector, files, playwright.PageSetInputFilesOptions{Timeout: ms(timeout)}))
}

func (p *playwrightPage) DragAndDrop(source, target string, timeout time.Duration) error {
	return elementErr(source, p.page.DragAndDrop(source, target, playwright.PageDragAndDropOptions{Timeout: ms(timeout)}))
}

func (p *playwrightPage) Evaluate(expression string, args ...any) (any, error) {
	return p.page.Evaluate(expression, args...)
}

func (p *playwrightPage) Screenshot(fullPage bool) ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(fullPage)})
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
