package service

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"pairchat/internal/classify"
	"pairchat/internal/domain"
	"pairchat/internal/observability"
	"pairchat/internal/websocket"
)

const (
	defaultStoreTimeout = 5 * time.Second
	roomLockStripes     = 64

	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Membership is the slice of the hub the dispatcher needs. Kept narrow so a
// distributed group-membership primitive can stand in without touching the
// dispatch contract.
type Membership interface {
	Join(sub websocket.Subscriber, roomKey string) bool
	Broadcast(roomKey string, payload []byte) int
}

// BroadcastRelay forwards a local broadcast to the other instances of the
// service. Optional: a nil relay means single-instance deployment.
type BroadcastRelay interface {
	Relay(ctx context.Context, roomKey string, payload []byte) error
}

// DispatchService orchestrates an inbound message event: classify the
// content, resolve the pairwise room, persist, subscribe the sender, and
// fan the result out to everyone in the room.
type DispatchService struct {
	store        domain.MessageRepository
	membership   Membership
	relay        BroadcastRelay
	storeTimeout time.Duration

	// roomLocks serializes append-then-publish per room so two rapid sends
	// to the same room are persisted and delivered in arrival order, while
	// unrelated rooms dispatch in parallel.
	roomLocks [roomLockStripes]sync.Mutex
}

// NewDispatchService wires a dispatcher. relay may be nil.
func NewDispatchService(store domain.MessageRepository, membership Membership, relay BroadcastRelay) *DispatchService {
	return &DispatchService{
		store:        store,
		membership:   membership,
		relay:        relay,
		storeTimeout: defaultStoreTimeout,
	}
}

// SetStoreTimeout overrides how long a persist may take once dispatch has
// begun. Values <= 0 are ignored.
func (s *DispatchService) SetStoreTimeout(d time.Duration) {
	if d > 0 {
		s.storeTimeout = d
	}
}

// HandleInbound processes one inbound message event. On success the
// persisted message is returned; every member of the resolved room at
// publish time, the sender included, has received exactly one broadcast
// copy. A persistence failure aborts the dispatch before any delivery and
// surfaces domain.ErrStoreUnavailable.
//
// Only the sender is subscribed to the room here. The recipient joins when
// they send or open the conversation themselves; delivery to a recipient
// who never did is handled by History, not by replay.
func (s *DispatchService) HandleInbound(ctx context.Context, sub websocket.Subscriber, sender, recipient, content string) (*domain.Message, error) {
	if sender == "" {
		return nil, domain.ErrUnauthorized
	}
	if recipient == "" || content == "" {
		return nil, domain.ErrInvalidInput
	}

	start := time.Now()

	msg := &domain.Message{
		Sender:      sender,
		Content:     content,
		ContentType: classify.Classify(content),
	}

	roomKey, err := domain.RoomKey(sender, recipient)
	if err != nil {
		return nil, err
	}
	msg.RoomKey = roomKey

	lock := &s.roomLocks[stripeFor(roomKey)]
	lock.Lock()
	defer lock.Unlock()

	// Persist first; a message must never be observable before it is
	// durable. The append runs on a detached timeout context so an
	// in-flight persist completes even if the sender disconnects.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	err = s.store.Append(storeCtx, msg)
	cancel()
	if err != nil {
		observability.MessagesDispatched.WithLabelValues(string(msg.ContentType), "store_error").Inc()
		return nil, err
	}

	// Join is idempotent, so it is called on every send rather than only
	// the first one.
	s.membership.Join(sub, roomKey)

	payload, err := websocket.EncodeOutbound(msg, recipient)
	if err != nil {
		// Persisted but not deliverable; surface so the transport can tell
		// the sender.
		observability.MessagesDispatched.WithLabelValues(string(msg.ContentType), "encode_error").Inc()
		return nil, err
	}

	delivered := s.membership.Broadcast(roomKey, payload)

	if s.relay != nil {
		if err := s.relay.Relay(ctx, roomKey, payload); err != nil {
			// Local delivery already happened; the relay is best-effort.
			slog.Warn("broadcast relay failed",
				slog.String("error", err.Error()),
				slog.String("room_key", roomKey))
		}
	}

	observability.MessagesDispatched.WithLabelValues(string(msg.ContentType), "ok").Inc()
	observability.DispatchDuration.Observe(time.Since(start).Seconds())

	slog.Debug("message dispatched",
		slog.String("room_key", roomKey),
		slog.String("sender", sender),
		slog.String("content_type", string(msg.ContentType)),
		slog.Int("delivered", delivered))

	return msg, nil
}

// History returns the persisted conversation between user and peer, oldest
// first, bounded by page. The caller identity must already be
// authenticated.
func (s *DispatchService) History(ctx context.Context, user, peer string, page domain.HistoryPage) ([]*domain.Message, error) {
	if user == "" {
		return nil, domain.ErrUnauthorized
	}

	roomKey, err := domain.RoomKey(user, peer)
	if err != nil {
		return nil, err
	}

	if page.Limit <= 0 {
		page.Limit = defaultHistoryLimit
	}
	if page.Limit > maxHistoryLimit {
		page.Limit = maxHistoryLimit
	}

	return s.store.History(ctx, roomKey, page)
}

func stripeFor(roomKey string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(roomKey))
	return h.Sum32() % roomLockStripes
}
