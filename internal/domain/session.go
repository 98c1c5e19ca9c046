package domain

import (
	"context"
	"time"
)

// Session represents an active user session. A session is valid while the
// current time is before ExpiresAt.
type Session struct {
	Token     string
	UserEmail string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository defines the port for session persistence operations.
// GetByToken returns (nil, nil) when no row matches; expiry is judged by the
// caller, not the store.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) error
}
