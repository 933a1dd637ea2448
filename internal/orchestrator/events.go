package orchestrator

import (
	"context"

	"github.com/shaiso/Webmata/internal/domain"
)

// EventSink получает события оркестратора.
//
// Реализации не должны блокироваться надолго и сами логируют свои ошибки.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event)
}

// Fanout рассылает событие нескольким подписчикам по очереди.
type Fanout []EventSink

// Publish отправляет событие каждому подписчику.
func (f Fanout) Publish(ctx context.Context, event domain.Event) {
	for _, sink := range f {
		if sink != nil {
			sink.Publish(ctx, event)
		}
	}
}

// emit отправляет событие, если подписчик задан.
func (o *Orchestrator) emit(ctx context.Context, event domain.Event) {
	if o.events == nil {
		return
	}
	o.events.Publish(context.WithoutCancel(ctx), event)
}
