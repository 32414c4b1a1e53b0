package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/models"
)

// Listen delivers events published by other instances to handle until ctx is
// cancelled. Events from this instance are skipped.
func (p *Publisher) Listen(ctx context.Context, handle func(models.SessionEvent)) {
	pubsub := p.rdb.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	p.log.Info("subscribed to session events", zap.String("channel", p.channel), zap.String("instanceId", p.instanceID))

	for {
		select {
		case <-ctx.Done():
			p.log.Info("stopping session event subscriber")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.log.Warn("failed to unmarshal session event", zap.Error(err))
				continue
			}
			if ev.InstanceID == p.instanceID {
				continue
			}
			handle(ev)
		}
	}
}
