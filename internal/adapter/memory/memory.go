// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"family6/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions map[string]*domain.Session
	messages []domain.ChatMessage
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]*domain.Session),
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)
var _ domain.ChatRepository = (*ChatRepo)(nil)

// --- UserRepository ---

// GetByEmail retrieves a user by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// GetByVerifyToken retrieves a user by its pending verify token.
func (db *DB) GetByVerifyToken(ctx context.Context, token string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if token == "" {
		return nil, nil
	}
	for _, u := range db.users {
		if u.VerifyToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByResetToken retrieves a user by its pending reset token.
func (db *DB) GetByResetToken(ctx context.Context, token string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if token == "" {
		return nil, nil
	}
	for _, u := range db.users {
		if u.ResetToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, u *domain.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[u.Email]; ok {
		return errors.New("user already exists")
	}
	cp := *u
	db.users[u.Email] = &cp
	return nil
}

// Update rewrites the row keyed by u.Email. Updating an absent row is a
// no-op.
func (db *DB) Update(ctx context.Context, u *domain.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[u.Email]; !ok {
		return nil
	}
	cp := *u
	db.users[u.Email] = &cp
	return nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cp := *s
	r.db.sessions[s.Token] = &cp
	return nil
}

// GetByToken retrieves a session by token. Expiry is judged by the caller,
// not the store.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[token]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all sessions past their expiry.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}

// --- ChatRepository ---

// ChatRepo implements chat history persistence.
type ChatRepo struct {
	db *DB
}

// NewChatRepo creates a new chat repository.
func (db *DB) NewChatRepo() *ChatRepo {
	return &ChatRepo{db: db}
}

// Append appends one immutable chat message.
func (r *ChatRepo) Append(ctx context.Context, m domain.ChatMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.messages = append(r.db.messages, m)
	return nil
}

// ListByUser returns the user's messages in insertion order.
func (r *ChatRepo) ListByUser(ctx context.Context, email string) ([]domain.ChatMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []domain.ChatMessage
	for _, m := range r.db.messages {
		if m.UserEmail == email {
			out = append(out, m)
		}
	}
	return out, nil
}
