// Package cli реализует инструмент командной строки Webmata.
//
// CLI работает с Webmata API только по HTTP и не импортирует внутренние
// пакеты сервиса. Client разбирает конверты DataResponse, ListResponse и
// ErrorResponse; ошибка API возвращается как *APIError с HTTP-статусом и
// кодом.
//
//	client := cli.NewClient("http://localhost:8000")
//	tasks, err := client.ListTasks(cli.ListTasksOpts{Status: "failed"})
//
// Output печатает таблицы через text/tabwriter или JSON при флаге --json.
// Данные идут в stdout, сообщения Success и Error в stderr, поэтому
// работает pipe: webmata task list --json | jq .
//
// Команды сгруппированы по ресурсам:
//   - task: list, create, show, update, delete, run, batch, status, stop, preview, stats, logs
//   - step: list, add, import, delete
//   - session: list, launch, close
//   - execution: list, show, stop
//   - editor: sessions, export, convert
//
// Каждая группа создаётся фабрикой (NewTaskCmd и т.д.), принимающей
// clientFn и outputFn: Client и Output строятся лениво, после разбора
// PersistentFlags корневой команды.
package cli
