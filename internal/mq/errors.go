package mq

import "errors"

var (
	// ErrNoChannel — канал AMQP не открыт (соединение восстанавливается).
	ErrNoChannel = errors.New("no channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMalformedMessage — тело сообщения не разбирается.
	ErrMalformedMessage = errors.New("malformed message")
)
