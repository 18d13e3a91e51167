package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is a logged-in user's browser session, identified by an opaque
// token carried in a cookie.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session's lifetime has passed.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionRepository persists sessions. GetByToken must not return expired
// sessions; DeleteExpired reaps them and reports how many were removed.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
