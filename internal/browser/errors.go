package browser

import "errors"

// Ошибки реестра браузерных сессий.
var (
	// ErrSessionNotFound — сессия не зарегистрирована или уже закрыта.
	ErrSessionNotFound = errors.New("session not found")

	// ErrElementNotFound — элемент не найден за отведённое время.
	ErrElementNotFound = errors.New("element not found")

	// ErrInvalidWindowSize — размер окна не в формате "WxH".
	ErrInvalidWindowSize = errors.New("invalid window size")

	// ErrUnsupportedBrowser — неизвестный тип браузера.
	ErrUnsupportedBrowser = errors.New("unsupported browser type")

	// ErrEngineClosed — движок браузера уже остановлен.
	ErrEngineClosed = errors.New("browser engine closed")
)
