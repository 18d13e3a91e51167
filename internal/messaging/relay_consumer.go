package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
)

// LocalBroadcaster is the hub side the relay needs: deliver a payload to
// the local members of a room.
type LocalBroadcaster interface {
	Broadcast(roomKey string, payload []byte) int
}

// RelayConsumer re-delivers broadcasts published by other instances into
// the local hub.
type RelayConsumer struct {
	backplane *Backplane
	hub       LocalBroadcaster
}

func NewRelayConsumer(backplane *Backplane, hub LocalBroadcaster) *RelayConsumer {
	return &RelayConsumer{
		backplane: backplane,
		hub:       hub,
	}
}

// Start binds an exclusive auto-delete queue to the broadcast exchange and
// consumes until ctx is cancelled. Envelopes published by this instance are
// dropped: their local members were already served directly.
func (c *RelayConsumer) Start(ctx context.Context) error {
	queue, err := c.backplane.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	if err := c.backplane.channel.QueueBind(
		queue.Name,
		"",
		broadcastExchange,
		false,
		nil,
	); err != nil {
		return err
	}

	msgs, err := c.backplane.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return err
	}

	slog.Info("started consuming relayed broadcasts",
		slog.String("queue", queue.Name),
		slog.String("exchange", broadcastExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping relay consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("relay consumer channel closed")
					return
				}

				var env broadcastEnvelope
				if err := json.Unmarshal(msg.Body, &env); err != nil {
					slog.Error("error unmarshaling broadcast envelope",
						slog.String("error", err.Error()))
					continue
				}

				if env.Instance == c.backplane.instanceID {
					continue
				}

				delivered := c.hub.Broadcast(env.RoomKey, env.Payload)
				slog.Debug("re-delivered relayed broadcast",
					slog.String("room_key", env.RoomKey),
					slog.String("origin", env.Instance),
					slog.Int("delivered", delivered))
			}
		}
	}()

	return nil
}
