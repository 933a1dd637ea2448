// Package realtime рассылает события сессиям редактора по WebSocket.
//
// Hub хранит не больше одного соединения на сессию и метаданные
// соединения (connected_at, step_count, recording). У каждого соединения
// своя очередь исходящих сообщений и горутина записи: Send и Publish не
// ждут сети. Переполненная очередь или ошибка записи отключают сессию.
//
// Подключение разрешено только с origin из Config.AllowedOrigins.
//
// # Входящие сообщения
//
//	ping              → pong
//	update_status     → метаданные дополняются полями data
//	recording_event   → data.event_type start/stop переключает recording
//	request_snapshot  → snapshot_requested с data.url
//
// Остальные типы игнорируются.
//
// # События движка
//
// Hub реализует orchestrator.EventSink: событие рассылается всем
// подключённым сессиям как {type, data}.
package realtime
