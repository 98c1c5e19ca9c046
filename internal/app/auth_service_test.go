package app

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestAuth(t *testing.T) (*AuthService, *fakeUserRepo, *fakeSessionRepo, *recordingMailer, *testClock) {
	t.Helper()
	clock := newTestClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	mailer := newRecordingMailer()
	sm := NewSessionManager(sessions, clock.Now)
	svc := NewAuthService(users, sm, mailer, "http://app.local", discardLogger(), clock.Now)
	return svc, users, sessions, mailer, clock
}

func waitForMail(t *testing.T, m *recordingMailer) sentMail {
	t.Helper()
	select {
	case msg := <-m.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail")
		return sentMail{}
	}
}

// signupConfirmed registers and confirms an account so login can succeed.
func signupConfirmed(t *testing.T, svc *AuthService, users *fakeUserRepo, email, password string) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Signup(ctx, email, password, "ann"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	u, err := users.GetByEmail(ctx, email)
	if err != nil || u == nil {
		t.Fatalf("user lookup after signup: %v", err)
	}
	if status, err := svc.ConfirmEmail(ctx, u.VerifyToken); err != nil || status != ConfirmSuccess {
		t.Fatalf("confirm: status=%v err=%v", status, err)
	}
}

func TestSignup_CreatesUnverifiedUserAndMailsLink(t *testing.T) {
	svc, users, _, mailer, _ := newTestAuth(t)
	ctx := context.Background()

	out, err := svc.Signup(ctx, "A@X.com ", "pw123456", "ann")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if out.Email != "a@x.com" {
		t.Errorf("email not normalized: %q", out.Email)
	}
	if out.Verified {
		t.Error("new account must start unverified")
	}

	u, _ := users.GetByEmail(ctx, "a@x.com")
	if u == nil {
		t.Fatal("user not stored")
	}
	if u.VerifyToken == "" {
		t.Error("verify token missing")
	}
	if u.PasswordHash != HashPassword("pw123456", u.Salt) {
		t.Error("stored hash does not match the salted password")
	}

	msg := waitForMail(t, mailer)
	if msg.To != "a@x.com" {
		t.Errorf("mail sent to %q", msg.To)
	}
	if !strings.Contains(msg.Body, "action=confirmEmail&token="+u.VerifyToken) {
		t.Errorf("mail body missing confirmation link: %q", msg.Body)
	}
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _, _, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "", "pw123456", ""); err != ErrMissingFields {
		t.Errorf("missing email: got %v", err)
	}
	if _, err := svc.Signup(ctx, "a@x.com", "", ""); err != ErrMissingFields {
		t.Errorf("missing password: got %v", err)
	}

	if _, err := svc.Signup(ctx, "a@x.com", "pw123456", "ann"); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if _, err := svc.Signup(ctx, "a@x.com", "other-pw", "ann2"); err != ErrEmailTaken {
		t.Errorf("duplicate email: got %v", err)
	}
}

func TestLogin_RequiresConfirmation(t *testing.T) {
	svc, users, _, _, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "pw123456", "ann"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, err := svc.Login(ctx, "a@x.com", "pw123456"); err != ErrUnverifiedEmail {
		t.Fatalf("before confirmation: got %v", err)
	}

	u, _ := users.GetByEmail(ctx, "a@x.com")
	if status, _ := svc.ConfirmEmail(ctx, u.VerifyToken); status != ConfirmSuccess {
		t.Fatalf("confirm status %v", status)
	}

	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	if err != nil {
		t.Fatalf("after confirmation: %v", err)
	}
	if res.Token == "" {
		t.Error("expected a session token")
	}
	if !res.User.Verified {
		t.Error("login summary should be verified")
	}
}

func TestLogin_CredentialFailuresCollapse(t *testing.T) {
	svc, users, _, _, _ := newTestAuth(t)
	ctx := context.Background()
	signupConfirmed(t, svc, users, "a@x.com", "pw123456")

	cases := []struct {
		name            string
		email, password string
	}{
		{"wrong password", "a@x.com", "wrong"},
		{"unknown email", "nobody@x.com", "pw123456"},
		{"missing password", "a@x.com", ""},
	}
	for _, tc := range cases {
		_, err := svc.Login(ctx, tc.email, tc.password)
		if err == nil || err.Error() != "Invalid login credentials" {
			t.Errorf("%s: got %v, want the collapsed credentials error", tc.name, err)
		}
	}
}

func TestConfirmEmail_OneShot(t *testing.T) {
	svc, users, _, _, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "pw123456", "ann"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	u, _ := users.GetByEmail(ctx, "a@x.com")
	token := u.VerifyToken

	if status, _ := svc.ConfirmEmail(ctx, token); status != ConfirmSuccess {
		t.Fatalf("first confirm: %v", status)
	}

	u, _ = users.GetByEmail(ctx, "a@x.com")
	if !u.Verified {
		t.Error("verified flag not set")
	}
	if u.VerifyToken != "" {
		t.Error("verify token not blanked after confirmation")
	}

	// The blanked token makes a replay report invalid, and a verified
	// account found by some other token reports already_verified. Both
	// terminal states never re-trigger the transition.
	if status, _ := svc.ConfirmEmail(ctx, token); status != ConfirmInvalidToken {
		t.Errorf("replay with consumed token: %v", status)
	}
	if status, _ := svc.ConfirmEmail(ctx, "bogus"); status != ConfirmInvalidToken {
		t.Errorf("unknown token: %v", status)
	}
}

func TestConfirmEmail_AlreadyVerified(t *testing.T) {
	svc, users, _, _, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "pw123456", "ann"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	// A verified row that still carries a token (e.g. verified out of band)
	// reports already_verified without flipping anything.
	u, _ := users.GetByEmail(ctx, "a@x.com")
	token := u.VerifyToken
	u.Verified = true
	if err := users.Update(ctx, u); err != nil {
		t.Fatal(err)
	}

	if status, _ := svc.ConfirmEmail(ctx, token); status != ConfirmAlreadyVerified {
		t.Errorf("got %v, want already_verified", status)
	}
}

func TestRequestReset_UniformMessage(t *testing.T) {
	svc, users, _, mailer, clock := newTestAuth(t)
	ctx := context.Background()
	signupConfirmed(t, svc, users, "a@x.com", "pw123456")
	waitForMail(t, mailer) // drain the signup mail

	unknownMsg, err := svc.RequestReset(ctx, "nobody@x.com")
	if err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	knownMsg, err := svc.RequestReset(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("known email: %v", err)
	}
	if unknownMsg != knownMsg {
		t.Errorf("messages differ: %q vs %q", unknownMsg, knownMsg)
	}

	u, _ := users.GetByEmail(ctx, "a@x.com")
	if u.ResetToken == "" {
		t.Fatal("reset token not written")
	}
	if want := clock.Now().Add(ResetTokenTTL); !u.ResetTokenExpires.Equal(want) {
		t.Errorf("reset expiry %v, want %v", u.ResetTokenExpires, want)
	}

	msg := waitForMail(t, mailer)
	if !strings.Contains(msg.Body, u.ResetToken) {
		t.Errorf("reset mail missing token: %q", msg.Body)
	}
}

func TestResetPassword_RoundTrip(t *testing.T) {
	svc, users, _, _, _ := newTestAuth(t)
	ctx := context.Background()
	signupConfirmed(t, svc, users, "a@x.com", "pw123456")

	if _, err := svc.RequestReset(ctx, "a@x.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	u, _ := users.GetByEmail(ctx, "a@x.com")
	token := u.ResetToken

	if err := svc.ResetPassword(ctx, token, "new-pw-99"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := svc.Login(ctx, "a@x.com", "new-pw-99"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if _, err := svc.Login(ctx, "a@x.com", "pw123456"); err != ErrInvalidCredentials {
		t.Errorf("old password still works: %v", err)
	}

	u, _ = users.GetByEmail(ctx, "a@x.com")
	if u.ResetToken != "" || !u.ResetTokenExpires.IsZero() {
		t.Error("reset token not cleared after use")
	}

	// The token is single-use.
	if err := svc.ResetPassword(ctx, token, "another-pw"); err != ErrResetTokenInvalid {
		t.Errorf("token replay: got %v", err)
	}
}

func TestResetPassword_Validation(t *testing.T) {
	svc, users, _, _, clock := newTestAuth(t)
	ctx := context.Background()
	signupConfirmed(t, svc, users, "a@x.com", "pw123456")

	if err := svc.ResetPassword(ctx, "", "new-pw-99"); err != ErrResetTokenInvalid {
		t.Errorf("missing token: %v", err)
	}
	if err := svc.ResetPassword(ctx, "bogus", "short"); err != ErrPasswordTooShort {
		t.Errorf("short password: %v", err)
	}
	if err := svc.ResetPassword(ctx, "bogus", "new-pw-99"); err != ErrResetTokenInvalid {
		t.Errorf("unknown token: %v", err)
	}

	if _, err := svc.RequestReset(ctx, "a@x.com"); err != nil {
		t.Fatal(err)
	}
	u, _ := users.GetByEmail(ctx, "a@x.com")
	clock.Advance(ResetTokenTTL + time.Minute)
	if err := svc.ResetPassword(ctx, u.ResetToken, "new-pw-99"); err != ErrResetTokenInvalid {
		t.Errorf("expired token: %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	svc, users, _, _, _ := newTestAuth(t)
	ctx := context.Background()
	signupConfirmed(t, svc, users, "a@x.com", "pw123456")

	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.UpdatePassword(ctx, "bad-token", "new-pw-99"); err != ErrSessionNotFound {
		t.Errorf("bad session: %v", err)
	}
	if err := svc.UpdatePassword(ctx, res.Token, "short"); err != ErrPasswordTooShort {
		t.Errorf("short password: %v", err)
	}
	if err := svc.UpdatePassword(ctx, res.Token, "new-pw-99"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.Login(ctx, "a@x.com", "new-pw-99"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, users, _, _, clock := newTestAuth(t)
	ctx := context.Background()
	signupConfirmed(t, svc, users, "a@x.com", "pw123456")

	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	if err != nil {
		t.Fatal(err)
	}

	before, _ := users.GetByEmail(ctx, "a@x.com")
	clock.Advance(time.Hour)

	name := "annika"
	out, err := svc.UpdateProfile(ctx, res.Token, &name)
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if out.Username != "annika" {
		t.Errorf("username %q", out.Username)
	}

	// Omitting the username keeps it but still bumps updated_at.
	out, err = svc.UpdateProfile(ctx, res.Token, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Username != "annika" {
		t.Errorf("username overwritten by nil update: %q", out.Username)
	}
	after, _ := users.GetByEmail(ctx, "a@x.com")
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Error("updated_at not refreshed")
	}
}

func TestGetUserAndValidateSession(t *testing.T) {
	svc, users, _, _, _ := newTestAuth(t)
	ctx := context.Background()
	signupConfirmed(t, svc, users, "a@x.com", "pw123456")

	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	if err != nil {
		t.Fatal(err)
	}

	u, err := svc.GetUser(ctx, res.Token)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Email != "a@x.com" {
		t.Errorf("email %q", u.Email)
	}

	v, err := svc.ValidateSession(ctx, res.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !v.ExpiresAt.Equal(res.ExpiresAt) {
		t.Errorf("expiry mismatch: %v vs %v", v.ExpiresAt, res.ExpiresAt)
	}

	if _, err := svc.GetUser(ctx, "bogus"); err != ErrSessionNotFound {
		t.Errorf("bogus token: %v", err)
	}
}

func TestLogout(t *testing.T) {
	svc, users, sessions, _, _ := newTestAuth(t)
	ctx := context.Background()
	signupConfirmed(t, svc, users, "a@x.com", "pw123456")

	res, err := svc.Login(ctx, "a@x.com", "pw123456")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Logout(ctx, res.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sessions.count() != 0 {
		t.Error("session row survived logout")
	}

	// Logging out an absent or empty token still succeeds.
	if err := svc.Logout(ctx, res.Token); err != nil {
		t.Errorf("repeat logout: %v", err)
	}
	if err := svc.Logout(ctx, ""); err != nil {
		t.Errorf("empty token logout: %v", err)
	}
}

func TestLoginWithSSO_AutoProvisions(t *testing.T) {
	svc, users, _, _, _ := newTestAuth(t)
	ctx := context.Background()

	res, err := svc.LoginWithSSO(ctx, "Sso@X.com", "Ann Example")
	if err != nil {
		t.Fatalf("sso login: %v", err)
	}
	if res.Token == "" {
		t.Error("expected a session token")
	}
	u, _ := users.GetByEmail(ctx, "sso@x.com")
	if u == nil {
		t.Fatal("sso user not provisioned")
	}
	if !u.Verified {
		t.Error("sso user should be verified")
	}

	// Second login reuses the account.
	if _, err := svc.LoginWithSSO(ctx, "sso@x.com", ""); err != nil {
		t.Errorf("second sso login: %v", err)
	}
}
