package browser

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Webmata/internal/domain"
)

// Engine — процессный движок браузера.
//
// Один экземпляр на процесс. Каждый NewSession открывает отдельный
// браузер с изолированным контекстом и одной страницей.
type Engine interface {
	// NewSession запускает браузер с заданной конфигурацией.
	NewSession(ctx context.Context, cfg domain.BrowserConfig) (*Handle, error)

	// Shutdown останавливает движок. После вызова NewSession возвращает ErrEngineClosed.
	Shutdown() error
}

// Page — действия над страницей браузера.
type Page interface {
	// Goto открывает URL и возвращает HTTP статус ответа (0, если ответа нет).
	Goto(url string, timeout time.Duration) (int, error)

	Click(selector string, timeout time.Duration) error
	Fill(selector, text string, timeout time.Duration) error
	Hover(selector string, timeout time.Duration) error
	SelectOption(selector string, values []string, timeout time.Duration) ([]string, error)
	SetInputFiles(selector string, files []string, timeout time.Duration) error
	DragAndDrop(source, target string, timeout time.Duration) error

	// Evaluate выполняет JavaScript выражение на странице.
	Evaluate(expression string, args ...any) (any, error)

	// Screenshot снимает видимую область или всю страницу.
	Screenshot(fullPage bool) ([]byte, error)

	Title() (string, error)
	URL() string

	Close() error
}

// Closer — объект браузера, который нужно закрыть.
type Closer interface {
	Close() error
}

// CloserFunc адаптирует функцию к Closer.
type CloserFunc func() error

// Close вызывает функцию.
func (f CloserFunc) Close() error {
	if f == nil {
		return nil
	}
	return f()
}

// Handle — живые объекты одной сессии: страница, контекст, браузер.
type Handle struct {
	Page    Page
	Context Closer
	Browser Closer
}

// Close закрывает страницу, контекст и браузер в этом порядке.
// Ошибки не прерывают закрытие и возвращаются вместе.
func (h *Handle) Close() error {
	var errs []error
	if h.Page != nil {
		if err := h.Page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.Context != nil {
		if err := h.Context.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.Browser != nil {
		if err := h.Browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PageInfo — сводка о текущей странице.
type PageInfo struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Viewport struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"viewport"`
}

// ReadPageInfo собирает заголовок, адрес и размер окна страницы.
func ReadPageInfo(p Page) (*PageInfo, error) {
	title, err := p.Title()
	if err != nil {
		return nil, err
	}

	info := &PageInfo{Title: title, URL: p.URL()}

	v, err := p.Evaluate("() => ({width: window.innerWidth, height: window.innerHeight})")
	if err == nil {
		if m, ok := v.(map[string]any); ok {
			if w, ok := domain.ToFloat(m["width"]); ok {
				info.Viewport.Width = int(w)
			}
			if h, ok := domain.ToFloat(m["height"]); ok {
				info.Viewport.Height = int(h)
			}
		}
	}

	return info, nil
}
