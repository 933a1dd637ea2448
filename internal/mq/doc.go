// Package mq связывает движок с RabbitMQ.
//
// Шина переносит только события (execution.*, step.*, batch.*, preview.*),
// не работу: задачи выполняются в процессе API.
//
//   - connection.go — соединение с переподключением
//   - topology.go   — обменники, очереди, привязки
//   - publisher.go  — публикация и EventSink для оркестратора
//   - consumer.go   — чтение очереди (аудитор)
//
// Топология:
//
//	webmata.events (topic) -> events.audit [#], DLQ: dlq.events
//	webmata.dlq (direct)   -> dlq.events [events]
//
// DeclareTopology повторяет объявление после каждого переподключения,
// до того как консьюмер снова подпишется на очередь.
package mq
