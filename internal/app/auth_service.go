package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"family6/internal/domain"
	"family6/internal/mail"
)

// Error strings are user-facing: the HTTP adapter surfaces them verbatim in
// the error field, and clients match on them.
var (
	// ErrInvalidCredentials covers unknown email, missing fields and password
	// mismatch alike, so a caller cannot tell which check failed.
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	// ErrUnverifiedEmail is the one distinguishable login failure.
	ErrUnverifiedEmail = errors.New("Please confirm your email address before logging in")
	// ErrEmailTaken indicates a signup with an already registered email.
	ErrEmailTaken = errors.New("An account with this email already exists")
	// ErrMissingFields indicates a request without a required field.
	ErrMissingFields = errors.New("Email and password are required")
	// ErrPasswordTooShort rejects passwords under the minimum length.
	ErrPasswordTooShort = errors.New("Password must be at least 8 characters")
	// ErrResetTokenInvalid covers unknown and expired reset tokens alike.
	ErrResetTokenInvalid = errors.New("Invalid or expired reset token")
	// ErrUserNotFound indicates the user row vanished after session creation.
	ErrUserNotFound = errors.New("user not found")
)

// ResetRequestedMessage is returned by RequestReset whether or not the
// address has an account, to avoid a lookup oracle.
const ResetRequestedMessage = "If an account exists for that address, a password reset link has been sent"

// ResetTokenTTL is how long a password reset link stays usable.
const ResetTokenTTL = 24 * time.Hour

const minPasswordLength = 8

// UserSummary is the client-facing view of a user.
type UserSummary struct {
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginResult carries the session handed to a freshly authenticated client.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      UserSummary `json:"user"`
}

// ConfirmStatus is the terminal outcome of an email confirmation attempt.
type ConfirmStatus string

// Confirmation outcomes, also used as redirect query values.
const (
	ConfirmSuccess         ConfirmStatus = "success"
	ConfirmInvalidToken    ConfirmStatus = "invalid_token"
	ConfirmAlreadyVerified ConfirmStatus = "already_verified"
)

// AuthService orchestrates signup, login, password reset and profile
// management on top of the user store and the session manager.
type AuthService struct {
	users    domain.UserRepository
	sessions *SessionManager
	mailer   mail.Mailer
	baseURL  string
	log      *slog.Logger
	now      Clock
}

// NewAuthService creates an authentication service. baseURL is the public
// origin used to build confirmation and reset links. A nil clock defaults to
// time.Now.
func NewAuthService(users domain.UserRepository, sessions *SessionManager, mailer mail.Mailer, baseURL string, log *slog.Logger, now Clock) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		log:      log,
		now:      now,
	}
}

// normalizeEmail trims surrounding whitespace and lower-cases the address so
// lookups and uniqueness checks agree.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func summary(u *domain.User) UserSummary {
	return UserSummary{
		Email:     u.Email,
		Username:  u.Username,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	}
}

// Signup registers a new, unverified account and mails a confirmation link.
// The mail is sent asynchronously; a delivery failure is logged, never
// surfaced to the caller.
func (s *AuthService) Signup(ctx context.Context, email, password, username string) (*UserSummary, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	now := s.now()
	salt := NewSalt()
	u := &domain.User{
		Email:        email,
		Username:     strings.TrimSpace(username),
		PasswordHash: HashPassword(password, salt),
		Salt:         salt,
		VerifyToken:  GenerateToken(VerifyTokenLength),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.sendAsync(u.Email, "Confirm your email", fmt.Sprintf(
		"Welcome!\n\nConfirm your email address by opening this link:\n\n%s\n\nIf you did not sign up, you can ignore this message.\n",
		s.confirmLink(u.VerifyToken)))

	s.sessions.Events().publish(AuthEvent{Type: EventSignup, Email: u.Email, At: now})

	out := summary(u)
	return &out, nil
}

// Login authenticates the credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Verified {
		return nil, ErrUnverifiedEmail
	}
	if HashPassword(password, u.Salt) != u.PasswordHash {
		return nil, ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, u.Email)
	if err != nil {
		return nil, err
	}

	s.sessions.Events().publish(AuthEvent{Type: EventLogin, Email: u.Email, At: s.now()})

	return &LoginResult{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: summary(u)}, nil
}

// Logout invalidates the session. Always succeeds, even for an unknown or
// absent token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sess, err := s.sessions.sessions.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return err
	}
	if sess != nil {
		s.sessions.Events().publish(AuthEvent{Type: EventLogout, Email: sess.UserEmail, At: s.now()})
	}
	return nil
}

// ValidateSession resolves a session token to its user.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*LoginResult, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, sess.UserEmail)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return &LoginResult{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: summary(u)}, nil
}

// RequestReset starts a password reset. The returned message is identical
// whether or not the address has an account.
func (s *AuthService) RequestReset(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return ResetRequestedMessage, nil
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u == nil {
		return ResetRequestedMessage, nil
	}

	now := s.now()
	u.ResetToken = GenerateToken(ResetTokenLength)
	u.ResetTokenExpires = now.Add(ResetTokenTTL)
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return "", err
	}

	s.sendAsync(u.Email, "Reset your password", fmt.Sprintf(
		"A password reset was requested for this address.\n\nOpen this link to choose a new password (valid for 24 hours):\n\n%s\n\nIf you did not request a reset, you can ignore this message.\n",
		s.resetLink(u.ResetToken)))

	return ResetRequestedMessage, nil
}

// ResetPassword completes a reset started by RequestReset. The token is
// single-use: success clears it together with its expiry.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrResetTokenInvalid
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	u, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrResetTokenInvalid
	}
	now := s.now()
	if u.ResetTokenExpires.IsZero() || now.After(u.ResetTokenExpires) {
		return ErrResetTokenInvalid
	}

	salt := NewSalt()
	u.PasswordHash = HashPassword(newPassword, salt)
	u.Salt = salt
	u.ResetToken = ""
	u.ResetTokenExpires = time.Time{}
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return err
	}

	s.sessions.Events().publish(AuthEvent{Type: EventPasswordReset, Email: u.Email, At: now})
	return nil
}

// UpdatePassword changes the password for an authenticated session.
func (s *AuthService) UpdatePassword(ctx context.Context, sessionToken, newPassword string) error {
	sess, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	u, err := s.users.GetByEmail(ctx, sess.UserEmail)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}

	salt := NewSalt()
	u.PasswordHash = HashPassword(newPassword, salt)
	u.Salt = salt
	u.UpdatedAt = s.now()
	return s.users.Update(ctx, u)
}

// UpdateProfile overwrites the username when one is provided. updated_at is
// refreshed either way.
func (s *AuthService) UpdateProfile(ctx context.Context, sessionToken string, username *string) (*UserSummary, error) {
	sess, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, sess.UserEmail)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	if username != nil {
		u.Username = strings.TrimSpace(*username)
	}
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}

	out := summary(u)
	return &out, nil
}

// GetUser returns the summary for the session's user.
func (s *AuthService) GetUser(ctx context.Context, sessionToken string) (*UserSummary, error) {
	sess, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, sess.UserEmail)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	out := summary(u)
	return &out, nil
}

// ConfirmEmail consumes a verify token. The transition is one-shot: once the
// account is verified the token is blanked, so replaying the link reports
// already_verified.
func (s *AuthService) ConfirmEmail(ctx context.Context, verifyToken string) (ConfirmStatus, error) {
	if verifyToken == "" {
		return ConfirmInvalidToken, nil
	}

	u, err := s.users.GetByVerifyToken(ctx, verifyToken)
	if err != nil {
		return "", err
	}
	if u == nil {
		return ConfirmInvalidToken, nil
	}
	if u.Verified {
		return ConfirmAlreadyVerified, nil
	}

	now := s.now()
	u.Verified = true
	u.VerifyToken = ""
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return "", err
	}

	s.sessions.Events().publish(AuthEvent{Type: EventEmailVerified, Email: u.Email, At: now})
	return ConfirmSuccess, nil
}

// LoginWithSSO opens a session for an identity already proven by an external
// provider, auto-provisioning a verified account on first login. The account
// gets a random throwaway password; password login becomes possible only
// after a reset.
func (s *AuthService) LoginWithSSO(ctx context.Context, email, username string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		now := s.now()
		salt := NewSalt()
		u = &domain.User{
			Email:        email,
			Username:     strings.TrimSpace(username),
			PasswordHash: HashPassword(GenerateToken(SessionTokenLength), salt),
			Salt:         salt,
			Verified:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.Create(ctx, u); err != nil {
			// Retry the lookup in case a concurrent callback won the insert.
			u, err = s.users.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if u == nil {
				return nil, ErrUserNotFound
			}
		}
	}

	sess, err := s.sessions.Create(ctx, u.Email)
	if err != nil {
		return nil, err
	}

	s.sessions.Events().publish(AuthEvent{Type: EventLogin, Email: u.Email, At: s.now()})
	return &LoginResult{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: summary(u)}, nil
}

func (s *AuthService) confirmLink(token string) string {
	return fmt.Sprintf("%s/api/exec?action=confirmEmail&token=%s", s.baseURL, url.QueryEscape(token))
}

func (s *AuthService) resetLink(token string) string {
	return fmt.Sprintf("%s/reset?token=%s", s.baseURL, url.QueryEscape(token))
}

func (s *AuthService) sendAsync(to, subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.mailer.Send(ctx, to, subject, body); err != nil {
			s.log.Error("send mail", "to", to, "subject", subject, "err", err)
		}
	}()
}
