// Package browser управляет живыми браузерными сессиями.
//
// # Обзор
//
// Registry хранит открытые сессии по идентификатору (UUID) и отвечает
// за их жизненный цикл: запуск, поиск, закрытие, уборку простаивающих.
// Сам браузер скрыт за интерфейсом Engine, который создаётся один раз
// при старте процесса и передаётся в Registry явно.
//
//	engine := browser.NewPlaywrightEngine(browser.PlaywrightConfig{...})
//	registry := browser.NewRegistry(browser.Config{
//	    Engine:   engine,
//	    Store:    sessionRepo,
//	    Defaults: cfg.Browser,
//	    Logger:   logger,
//	})
//	defer registry.CloseAll()
//
// # Порядок закрытия
//
// Close закрывает страницу, затем контекст, затем браузер. Повторное
// закрытие неизвестной сессии возвращает false и ничего не делает.
//
// # Действия на странице
//
// Page — минимальный набор действий, который нужен Executor-у.
// Таймауты поиска элементов возвращаются как ErrElementNotFound.
//
// Для тестов есть пакет browsertest с движком в памяти.
package browser
