package app

import (
	"context"
	"errors"
	"time"

	"family6/internal/domain"
)

var (
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("no session")
	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = errors.New("session expired")
)

// SessionTTL is how long a session stays valid after login.
const SessionTTL = 7 * 24 * time.Hour

// Clock returns the current time. Injectable for expiry tests.
type Clock func() time.Time

// SessionManager owns the session lifecycle and the auth event registry.
type SessionManager struct {
	sessions domain.SessionRepository
	events   *AuthEvents
	now      Clock
}

// NewSessionManager creates a session manager. A nil clock defaults to
// time.Now.
func NewSessionManager(sessions domain.SessionRepository, now Clock) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		sessions: sessions,
		events:   &AuthEvents{},
		now:      now,
	}
}

// Events exposes the auth event registry owned by the session lifecycle.
func (m *SessionManager) Events() *AuthEvents {
	return m.events
}

// Create generates a fresh token and stores a session expiring in SessionTTL.
func (m *SessionManager) Create(ctx context.Context, email string) (*domain.Session, error) {
	now := m.now()
	s := &domain.Session{
		Token:     GenerateToken(SessionTokenLength),
		UserEmail: email,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate looks up a session token. An expired session is deleted as a side
// effect, so a second Validate with the same token reports ErrSessionNotFound
// rather than failing.
func (m *SessionManager) Validate(ctx context.Context, token string) (*domain.Session, error) {
	s, err := m.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	if !m.now().Before(s.ExpiresAt) {
		_ = m.sessions.Delete(ctx, s.Token)
		m.events.publish(AuthEvent{Type: EventSessionExpired, Email: s.UserEmail, At: m.now()})
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Delete removes a session. Deleting an absent token is a no-op.
func (m *SessionManager) Delete(ctx context.Context, token string) error {
	return m.sessions.Delete(ctx, token)
}

// DeleteExpired removes every session past its expiry.
func (m *SessionManager) DeleteExpired(ctx context.Context) error {
	return m.sessions.DeleteExpired(ctx, m.now())
}
