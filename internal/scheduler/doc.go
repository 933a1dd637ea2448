// Package scheduler запускает периодическое обслуживание движка.
//
// Janitor по cron-расписанию (robfig/cron):
//   - закрывает браузерные сессии, простаивающие дольше SessionIdle
//   - удаляет сессии редактора без активности дольше EditorRetention
//   - удаляет завершённые записи batch и preview старше RecordRetention
//
// Использование:
//
//	j := scheduler.New(scheduler.Config{
//	    Spec:       cfg.CleanupCron,
//	    Sessions:   registry,
//	    Editor:     editorRepo,
//	    Executions: orch,
//	})
//	go j.Run(ctx) // блокирует до отмены ctx
//
// Ошибка одного задания не мешает остальным.
package scheduler
