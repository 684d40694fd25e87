package persistence

import (
	"context"

	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/logger"
	"github.com/sylas-dev/sylas/internal/events"
	"github.com/sylas-dev/sylas/internal/events/bus"
	"github.com/sylas-dev/sylas/internal/trackersvc"
)

// Subscribe wires AuditLog to the event bus's activity.posted subject, so
// it records every activity internal/relay posts without relay needing
// to know this package exists.
func (l *AuditLog) Subscribe(b bus.EventBus, log *logger.Logger) (bus.Subscription, error) {
	return b.Subscribe(events.ActivityPosted, func(ctx context.Context, ev *bus.Event) error {
		sid, _ := ev.Data["external_session_id"].(string)
		kind, _ := ev.Data["kind"].(string)
		body, _ := ev.Data["body"].(string)
		if err := l.Record(ctx, sid, trackersvc.ActivityKind(kind), body); err != nil {
			log.WithError(err).Warn("audit log: failed recording activity", zap.String("external_session_id", sid))
		}
		return nil
	})
}
