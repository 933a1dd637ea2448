// Package orchestrator управляет выполнением задач автоматизации.
//
// Orchestrator отвечает за:
//   - Захват задачи (не больше одного выполнения на задачу)
//   - Запуск браузерной сессии и переход на URL задачи
//   - Последовательное выполнение шагов по step_order
//   - Кооперативную отмену на границе шагов
//   - Финальный статус по CompletionPolicy и обновление счётчиков
//   - Batch-выполнение нескольких задач параллельно
//   - Предпросмотр шагов в одноразовой сессии
//
// # Выполнение задачи
//
//	execID, err := orch.Execute(ctx, taskID, orchestrator.RunOptions{})
//	// задача захвачена синхронно, шаги выполняются в фоне
//
// Ошибка одного шага не прерывает выполнение. Инфраструктурные сбои
// (не удалось запустить браузер, открыть URL задачи, panic) переводят
// задачу в failed. Сессия браузера закрывается всегда.
//
// Перед выполнением в поля шага и URL задачи подставляются параметры
// задачи и данные предыдущих успешных шагов (см. пакет render):
//
//	TargetText: "{{ .Params.query }}"
//	TargetURL:  "{{ .Steps.open.final_url }}/cart"
//
// # Batch
//
// RunBatch запускает Run для каждой задачи через errgroup с ограничением
// MaxConcurrent. Ошибка одной задачи не отменяет остальные.
//
// # События
//
// Оркестратор отправляет domain.Event в EventSink: execution.started,
// step.finished, execution.finished, batch.*, preview.*.
package orchestrator
