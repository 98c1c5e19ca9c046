package app

import (
	"sync"
	"time"
)

// AuthEventType identifies a point in the account or session lifecycle.
type AuthEventType string

// Auth lifecycle events.
const (
	EventSignup         AuthEventType = "signup"
	EventLogin          AuthEventType = "login"
	EventLogout         AuthEventType = "logout"
	EventSessionExpired AuthEventType = "session_expired"
	EventEmailVerified  AuthEventType = "email_verified"
	EventPasswordReset  AuthEventType = "password_reset"
)

// AuthEvent describes a single auth lifecycle transition.
type AuthEvent struct {
	Type  AuthEventType
	Email string
	At    time.Time
}

// AuthEvents is a subscription registry for auth lifecycle events. Observers
// are invoked synchronously in subscription order; a panicking observer is
// recovered so it cannot block the ones after it.
type AuthEvents struct {
	mu   sync.Mutex
	subs []func(AuthEvent)
}

// Subscribe registers fn to receive future events.
func (e *AuthEvents) Subscribe(fn func(AuthEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

func (e *AuthEvents) publish(ev AuthEvent) {
	e.mu.Lock()
	subs := make([]func(AuthEvent), len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() { _ = recover() }()
			fn(ev)
		}()
	}
}
