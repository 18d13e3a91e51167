// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the pairchat application.
package testutil

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"pairchat/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockNotFound       = errors.New("mock: not found")
)

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc        func(ctx context.Context, user *domain.User) error
	GetByIDFunc       func(ctx context.Context, id string) (*domain.User, error)
	GetByUsernameFunc func(ctx context.Context, username string) (*domain.User, error)
	GetByEmailFunc    func(ctx context.Context, email string) (*domain.User, error)
	RecordLoginFunc   func(ctx context.Context, id string, at time.Time) error

	// In-memory storage for simple tests
	Users map[string]*domain.User
}

// NewMockUserRepository creates a new MockUserRepository with initialized maps
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.Users {
		if u.Username == user.Username {
			return domain.ErrUsernameExists
		}
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == "" {
		user.ID = "user-" + user.Username
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if m.RecordLoginFunc != nil {
		return m.RecordLoginFunc(ctx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.Users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.LastLoginAt = &at
	return nil
}

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	CreateFunc        func(ctx context.Context, session *domain.Session) error
	GetByTokenFunc    func(ctx context.Context, token string) (*domain.Session, error)
	DeleteFunc        func(ctx context.Context, token string) error
	DeleteExpiredFunc func(ctx context.Context) (int64, error)

	// Sessions keyed by token
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a new MockSessionRepository with initialized maps
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		session.ID = "session-" + session.Token
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	m.Sessions[session.Token] = session
	return nil
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.Sessions[token]; ok {
		return session, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	now := time.Now()
	for token, session := range m.Sessions {
		if session.ExpiresAt.Before(now) {
			delete(m.Sessions, token)
			removed++
		}
	}
	return removed, nil
}

// MockMessageRepository implements domain.MessageRepository for testing.
// Appended messages are kept per room in arrival order, which is also
// their SentAt order since Append stamps monotonically increasing times.
type MockMessageRepository struct {
	mu sync.RWMutex

	AppendFunc  func(ctx context.Context, message *domain.Message) error
	HistoryFunc func(ctx context.Context, roomKey string, page domain.HistoryPage) ([]*domain.Message, error)

	// Messages keyed by room key, oldest first
	Messages map[string][]*domain.Message

	nextID int
	lastAt time.Time
}

// NewMockMessageRepository creates a new MockMessageRepository with initialized maps
func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{
		Messages: make(map[string][]*domain.Message),
	}
}

func (m *MockMessageRepository) Append(ctx context.Context, message *domain.Message) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// IDs count up from 1, mirroring the BIGSERIAL column.
	m.nextID++
	message.ID = strconv.Itoa(m.nextID)

	at := time.Now()
	if !at.After(m.lastAt) {
		at = m.lastAt.Add(time.Microsecond)
	}
	m.lastAt = at
	message.SentAt = at

	m.Messages[message.RoomKey] = append(m.Messages[message.RoomKey], message)
	return nil
}

func (m *MockMessageRepository) History(ctx context.Context, roomKey string, page domain.HistoryPage) ([]*domain.Message, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, roomKey, page)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.Messages[roomKey]
	var eligible []*domain.Message
	for _, msg := range all {
		if beforeCursor(msg, page) {
			eligible = append(eligible, msg)
		}
	}
	if page.Limit > 0 && len(eligible) > page.Limit {
		eligible = eligible[len(eligible)-page.Limit:]
	}
	return eligible, nil
}

// beforeCursor reports whether msg falls strictly before the page's keyset
// cursor, with BeforeID breaking ties on equal timestamps.
func beforeCursor(msg *domain.Message, page domain.HistoryPage) bool {
	if page.Before.IsZero() {
		return true
	}
	if msg.SentAt.Before(page.Before) {
		return true
	}
	if page.BeforeID > 0 && msg.SentAt.Equal(page.Before) {
		id, err := strconv.Atoi(msg.ID)
		return err == nil && int64(id) < page.BeforeID
	}
	return false
}

// RoomCount returns the number of messages recorded for the room
func (m *MockMessageRepository) RoomCount(roomKey string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Messages[roomKey])
}
