package postgres

import (
	"context"
	"database/sql"
	"time"

	"family6/internal/domain"
)

const userColumns = "email, username, password_hash, salt, verified, verify_token, reset_token, reset_token_expires, created_at, updated_at"

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var resetExpires sql.NullTime
	err := row.Scan(&u.Email, &u.Username, &u.PasswordHash, &u.Salt, &u.Verified,
		&u.VerifyToken, &u.ResetToken, &resetExpires, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resetExpires.Valid {
		u.ResetTokenExpires = resetExpires.Time
	}
	return &u, nil
}

// GetByEmail retrieves a user by email.
func (d *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

// GetByVerifyToken retrieves a user by its pending verify token.
func (d *DB) GetByVerifyToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	return scanUser(d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE verify_token = $1", token))
}

// GetByResetToken retrieves a user by its pending reset token.
func (d *DB) GetByResetToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	return scanUser(d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token = $1", token))
}

// Create inserts a new user row.
func (d *DB) Create(ctx context.Context, u *domain.User) error {
	_, err := d.sql.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		u.Email, u.Username, u.PasswordHash, u.Salt, u.Verified,
		u.VerifyToken, u.ResetToken, nullTime(u.ResetTokenExpires), u.CreatedAt, u.UpdatedAt)
	return err
}

// Update rewrites the row keyed by u.Email. Updating an absent row is a
// no-op.
func (d *DB) Update(ctx context.Context, u *domain.User) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE users SET username = $2, password_hash = $3, salt = $4, verified = $5,
			verify_token = $6, reset_token = $7, reset_token_expires = $8, updated_at = $9
		WHERE email = $1`,
		u.Email, u.Username, u.PasswordHash, u.Salt, u.Verified,
		u.VerifyToken, u.ResetToken, nullTime(u.ResetTokenExpires), u.UpdatedAt)
	return err
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// SessionRepo implements session repository operations on DB.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo wraps a DB as a SessionRepository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.sql.ExecContext(ctx,
		"INSERT INTO sessions (token, user_email, created_at, expires_at) VALUES ($1, $2, $3, $4)",
		s.Token, s.UserEmail, s.CreatedAt, s.ExpiresAt)
	return err
}

// GetByToken retrieves a session by token. Expiry is judged by the caller.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.sql.QueryRowContext(ctx,
		"SELECT token, user_email, created_at, expires_at FROM sessions WHERE token = $1",
		token,
	).Scan(&s.Token, &s.UserEmail, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete deletes a session by token.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE token = $1", token)
	return err
}

// DeleteExpired deletes all sessions past their expiry.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < $1", now)
	return err
}
