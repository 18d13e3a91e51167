package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"pairchat/internal/domain"
)

var idCounter int64

// nextID generates a unique test ID with the given prefix
func nextID(prefix string) string {
	id := atomic.AddInt64(&idCounter, 1)
	return fmt.Sprintf("%s-%d", prefix, id)
}

// UserOptions configures test user creation
type UserOptions struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewTestUser creates a user with sensible defaults for testing
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		ID:           nextID("user"),
		Username:     nextID("testuser"),
		CreatedAt:    time.Now(),
		PasswordHash: "$2a$12$testhashedpasswordvalue",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Email == "" {
		o.Email = o.Username + "@example.com"
	}
	return &domain.User{
		ID:           o.ID,
		Username:     o.Username,
		Email:        o.Email,
		PasswordHash: o.PasswordHash,
		CreatedAt:    o.CreatedAt,
	}
}

// WithUsername sets the username on a test user
func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Username = username
	}
}

// WithPasswordHash sets the password hash on a test user
func WithPasswordHash(hash string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.PasswordHash = hash
	}
}

// SessionOptions configures test session creation
type SessionOptions struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewTestSession creates a session with sensible defaults for testing
func NewTestSession(opts ...func(*SessionOptions)) *domain.Session {
	o := &SessionOptions{
		ID:        nextID("session"),
		UserID:    nextID("user"),
		Token:     nextID("token"),
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &domain.Session{
		ID:        o.ID,
		UserID:    o.UserID,
		Token:     o.Token,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: o.CreatedAt,
	}
}

// WithSessionUserID sets the owning user ID on a test session
func WithSessionUserID(userID string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.UserID = userID
	}
}

// WithToken sets the token on a test session
func WithToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.Token = token
	}
}

// WithExpired makes the test session already expired
func WithExpired() func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.ExpiresAt = time.Now().Add(-time.Hour)
	}
}

// MessageOptions configures test message creation
type MessageOptions struct {
	ID          string
	RoomKey     string
	Sender      string
	Content     string
	ContentType domain.ContentType
	SentAt      time.Time
}

// NewTestMessage creates a message with sensible defaults for testing
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ID:          nextID("msg"),
		Sender:      "alice",
		Content:     "hello there",
		ContentType: domain.ContentTypeText,
		SentAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.RoomKey == "" {
		key, _ := domain.RoomKey(o.Sender, "bob")
		o.RoomKey = key
	}
	return &domain.Message{
		ID:          o.ID,
		RoomKey:     o.RoomKey,
		Sender:      o.Sender,
		Content:     o.Content,
		ContentType: o.ContentType,
		SentAt:      o.SentAt,
	}
}

// WithID sets the ID on a test message
func WithID(id string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.ID = id
	}
}

// WithSender sets the sender username on a test message
func WithSender(sender string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Sender = sender
	}
}

// WithRoomKey sets the room key on a test message
func WithRoomKey(roomKey string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.RoomKey = roomKey
	}
}

// WithContent sets the content and type on a test message
func WithContent(content string, contentType domain.ContentType) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Content = content
		o.ContentType = contentType
	}
}

// WithSentAt sets the timestamp on a test message
func WithSentAt(t time.Time) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.SentAt = t
	}
}

// NewTestMessages creates count messages in the same room, oldest first,
// spaced one second apart
func NewTestMessages(roomKey string, count int) []*domain.Message {
	base := time.Now().Add(-time.Duration(count) * time.Second)
	messages := make([]*domain.Message, count)
	for i := 0; i < count; i++ {
		messages[i] = NewTestMessage(
			WithRoomKey(roomKey),
			WithContent(fmt.Sprintf("message %d", i+1), domain.ContentTypeText),
			WithSentAt(base.Add(time.Duration(i)*time.Second)),
		)
	}
	return messages
}
