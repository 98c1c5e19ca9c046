// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"time"
)

// User represents an account keyed by email address.
type User struct {
	Email        string
	Username     string
	PasswordHash string
	Salt         string
	Verified     bool

	// VerifyToken is blanked once the email has been confirmed.
	VerifyToken string

	// ResetToken is empty unless a password reset is pending.
	ResetToken        string
	ResetTokenExpires time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRepository defines the port for user persistence operations.
// Lookups return (nil, nil) when no row matches.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByVerifyToken(ctx context.Context, token string) (*User, error)
	GetByResetToken(ctx context.Context, token string) (*User, error)
	Create(ctx context.Context, u *User) error
	// Update rewrites the row keyed by u.Email. Updating an absent row is a
	// no-op.
	Update(ctx context.Context, u *User) error
}
