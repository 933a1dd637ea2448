// Package editor реализует визуальный редактор шагов.
//
// Сессия редактора хранит записанные в браузере действия (temp_data в
// user_sessions). Из них можно:
//   - создать шаги задачи (Convert)
//   - выгрузить json или готовые шаги (Export)
//   - получить сводку по действиям (Analytics)
//   - сократить запись, склеив соседние wait и scroll (Optimize)
//
// Снимок страницы (Snapshot) делается в одноразовой браузерной сессии
// реестра и с сессией редактора не связан.
//
// О новых шагах клиент узнаёт через Notifier (realtime.Hub).
package editor
