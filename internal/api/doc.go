// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (хранилища, оркестратор, реестр, редактор, hub)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery, CORS)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - task_handler.go       — /tasks: CRUD, запуск, статус, остановка, журнал
//   - automation_handler.go — /automation: шаги, предпросмотр, браузерные сессии
//   - execution_handler.go  — /executions
//   - editor_handler.go     — /editor и WebSocket канал
//
// Все ответы оборачиваются в {"data": ...} или {"error": {"code", "message"}}.
package api
