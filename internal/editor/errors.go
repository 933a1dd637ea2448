package editor

import "errors"

// Ошибки редактора.
var (
	// ErrSessionNotFound — сессия редактора не найдена.
	ErrSessionNotFound = errors.New("editor session not found")

	// ErrInvalidFormat — неизвестный формат экспорта.
	ErrInvalidFormat = errors.New("invalid export format")

	// ErrNoRecordedSteps — в сессии нет записанных шагов.
	ErrNoRecordedSteps = errors.New("no recorded steps")

	// ErrInvalidStep — записанный шаг не прошёл проверку.
	ErrInvalidStep = errors.New("invalid recorded step")

	// ErrNotRecording — запись в сессии не запущена.
	ErrNotRecording = errors.New("recording is not active")

	// ErrMissingParameter — не передан обязательный параметр.
	ErrMissingParameter = errors.New("missing parameter")
)
