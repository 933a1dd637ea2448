// Package executor выполняет один шаг автоматизации в браузерной сессии.
//
// # Обзор
//
// Executor получает AutomationStep и идентификатор сессии, находит
// страницу в browser.Registry и выполняет действие по типу шага.
// Диспетчеризация — исчерпывающий switch по domain.ActionKind:
//
//	click, hover     — target_selector
//	type             — target_selector + target_text
//	select           — target_selector + значения (target_text или parameters.values)
//	scroll           — parameters.scroll_x / scroll_y, иначе на высоту окна
//	wait             — parameters.wait_time или timeout, в секундах
//	navigate         — target_url
//	screenshot       — видимая область, возвращает screenshot_size
//	drag_drop        — target_selector → parameters.target_selector
//	upload           — target_selector + parameters.files (или target_text)
//
// # Журнал
//
// На входе пишется "step started: {name}", на выходе
// "step succeeded: {name}" или "step failed: {name}: {err}".
//
// # Ошибки
//
// Execute всегда возвращает ActionResult. Если шаг не удался, в
// результате заполнено поле Error, а возвращаемая ошибка оборачивает
// один из sentinel-ов (ErrMissingParameter, ErrElementNotFound и т.д.).
//
// После успешного шага с wait_time > 0 Executor ждёт wait_time
// миллисекунд. Ожидание прерывается отменой контекста.
package executor
