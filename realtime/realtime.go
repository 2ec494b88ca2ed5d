// Package realtime adapts a Redis pub/sub channel to the engine's remote
// event stream. Delivery is at-least-once with no cross-item ordering; the
// collection's version guard makes duplicates harmless.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Subscribe listens on the board updates channel and hands each decoded
// event to handle. Malformed payloads are logged and skipped. The loop
// reconnects when the pubsub channel closes and returns when ctx is done.
func Subscribe(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	channel string,
	handle func(domain.RemoteEvent),
) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.RemoteEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Errorf("unable to parse board update: %v", err)
					continue
				}
				if ev.ItemID == "" || ev.Type == "" {
					logger.Warnf("dropping malformed board update on %s", channel)
					continue
				}
				handle(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

// Publisher emits this client's confirmed changes onto the board channel so
// other clients can reconcile them.
type Publisher struct {
	rc      *redis.Client
	channel string
	actor   string
}

func NewPublisher(rc *redis.Client, channel, actor string) *Publisher {
	return &Publisher{rc: rc, channel: channel, actor: actor}
}

// Publish tags the event with this publisher's actor id and sends it. An
// empty event id is filled in.
func (p *Publisher) Publish(ctx context.Context, ev domain.RemoteEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Actor = p.actor
	if ev.Time == 0 {
		ev.Time = time.Now().UnixNano()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rc.Publish(ctx, p.channel, data).Err()
}
