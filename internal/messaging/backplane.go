package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const broadcastExchange = "chat.broadcasts"

// Backplane connects one service instance to the shared broadcast fanout.
// Every local room broadcast is relayed through a fanout exchange so members
// connected to other instances receive it too; the membership and dispatch
// contracts are unchanged whether or not a backplane is attached.
type Backplane struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	instanceID string
}

// broadcastEnvelope is the wire format on the fanout exchange. Instance lets
// a consumer drop its own publications: local members were already served
// directly by the hub.
type broadcastEnvelope struct {
	Instance  string          `json:"instance"`
	RoomKey   string          `json:"room_key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func NewBackplane(url string) (*Backplane, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	b := &Backplane{
		conn:       conn,
		channel:    ch,
		instanceID: uuid.New().String(),
	}

	if err := b.setup(); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

// NewBackplaneWithRetry dials RabbitMQ until it succeeds or ctx expires.
// Brokers routinely come up after the service in containerized deployments.
func NewBackplaneWithRetry(ctx context.Context, url string) (*Backplane, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		b, err := NewBackplane(url)
		if err == nil {
			return b, nil
		}
		lastErr = err

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("giving up connecting to RabbitMQ: %w", lastErr)
		case <-time.After(2 * time.Second):
		}
	}
}

func (b *Backplane) setup() error {
	if err := b.channel.ExchangeDeclare(
		broadcastExchange, // name
		"fanout",          // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		return fmt.Errorf("failed to declare broadcasts exchange: %w", err)
	}

	slog.Info("rabbitmq backplane ready",
		slog.String("exchange", broadcastExchange),
		slog.String("instance", b.instanceID))
	return nil
}

// InstanceID identifies this service instance on the backplane.
func (b *Backplane) InstanceID() string {
	return b.instanceID
}

// Relay publishes an already-encoded broadcast payload to the fanout
// exchange. Implements the dispatcher's BroadcastRelay.
func (b *Backplane) Relay(ctx context.Context, roomKey string, payload []byte) error {
	env := broadcastEnvelope{
		Instance:  b.instanceID,
		RoomKey:   roomKey,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast envelope: %w", err)
	}

	err = b.channel.PublishWithContext(
		ctx,
		broadcastExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}

	return nil
}

func (b *Backplane) IsClosed() bool {
	return b.conn == nil || b.conn.IsClosed()
}

func (b *Backplane) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
