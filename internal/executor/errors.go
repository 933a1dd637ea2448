package executor

import (
	"errors"
	"fmt"

	"github.com/shaiso/Webmata/internal/browser"
)

// Ошибки выполнения шага.
var (
	// ErrMissingParameter — у шага нет обязательного поля.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrUnsupportedAction — неизвестный тип действия.
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrActionFailed — действие на странице завершилось ошибкой.
	ErrActionFailed = errors.New("action failed")

	// ErrNavigationFailed — переход по адресу не удался. Является ErrActionFailed.
	ErrNavigationFailed = fmt.Errorf("%w: navigation failed", ErrActionFailed)

	// ErrElementNotFound — элемент не найден за время таймаута шага.
	ErrElementNotFound = browser.ErrElementNotFound

	// ErrSessionNotFound — сессия не зарегистрирована или закрыта.
	ErrSessionNotFound = browser.ErrSessionNotFound
)
