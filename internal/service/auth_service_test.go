package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"contacts-api/internal/domain"
	"contacts-api/internal/repository"
)

type mockUserRepo struct {
	usersByEmail map[string]domain.User
	createErr    error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{usersByEmail: make(map[string]domain.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	m.usersByEmail[user.Email] = user
	return nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) UpdateRefreshToken(_ context.Context, email string, token *string) error {
	user, ok := m.usersByEmail[email]
	if !ok {
		return pgx.ErrNoRows
	}
	user.RefreshToken = token
	m.usersByEmail[email] = user
	return nil
}

func (m *mockUserRepo) RotateRefreshToken(_ context.Context, email, old, next string) (bool, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return false, nil
	}
	if user.RefreshToken == nil || *user.RefreshToken != old {
		return false, nil
	}
	user.RefreshToken = &next
	m.usersByEmail[email] = user
	return true, nil
}

func (m *mockUserRepo) ConfirmEmail(_ context.Context, email string) error {
	user, ok := m.usersByEmail[email]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Confirmed = true
	m.usersByEmail[email] = user
	return nil
}

func (m *mockUserRepo) UpdateAvatar(_ context.Context, email, avatarURL string) error {
	user, ok := m.usersByEmail[email]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Avatar = avatarURL
	m.usersByEmail[email] = user
	return nil
}

type sentEmail struct {
	to       string
	username string
	baseURL  string
	token    string
}

type mockSender struct {
	sent chan sentEmail
	err  error
}

func newMockSender() *mockSender {
	return &mockSender{sent: make(chan sentEmail, 8)}
}

func (m *mockSender) SendConfirmation(_ context.Context, toEmail, username, baseURL, token string) error {
	m.sent <- sentEmail{to: toEmail, username: username, baseURL: baseURL, token: token}
	return m.err
}

func (m *mockSender) waitForEmail(t *testing.T) sentEmail {
	t.Helper()
	select {
	case msg := <-m.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for confirmation email")
		return sentEmail{}
	}
}

func newTestAuthService(t *testing.T) (*AuthService, *mockUserRepo, *mockSender) {
	t.Helper()
	repo := newMockUserRepo()
	sender := newMockSender()
	tokens := newTestTokenService(t)
	svc := NewAuthService(zap.NewNop(), repo, tokens, NewBcryptHasher(4), sender, "http://localhost:8080")
	return svc, repo, sender
}

func TestAuthService_SignupCreatesUnconfirmedUser(t *testing.T) {
	svc, repo, sender := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, "A@X.com", "alice", "pw123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "a@x.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Confirmed {
		t.Fatalf("expected new user to start unconfirmed")
	}
	if user.PasswordHash == "pw123" || user.PasswordHash == "" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}

	stored, err := repo.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("get stored user: %v", err)
	}
	if stored.ID != user.ID {
		t.Fatalf("expected user persisted")
	}

	msg := sender.waitForEmail(t)
	if msg.to != "a@x.com" || msg.username != "alice" {
		t.Fatalf("unexpected confirmation email %+v", msg)
	}
	if msg.token == "" {
		t.Fatalf("expected confirmation token in email")
	}
}

func TestAuthService_SignupDuplicate(t *testing.T) {
	svc, _, sender := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "alice", "pw123"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	sender.waitForEmail(t)

	if _, err := svc.Signup(ctx, "a@x.com", "alice2", "pw456"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestAuthService_SignupMapsStoreConflict(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	ctx := context.Background()

	// Simula la carrera check-then-insert: el pre-chequeo no ve al usuario
	// pero el INSERT choca con la constraint UNIQUE.
	repo.createErr = repository.ErrDuplicateEmail

	if _, err := svc.Signup(ctx, "raced@x.com", "second", "pw123"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists from store conflict, got %v", err)
	}
}

func TestAuthService_LoginGatedByConfirmation(t *testing.T) {
	svc, _, sender := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "alice", "pw123"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	msg := sender.waitForEmail(t)

	if _, err := svc.Login(ctx, "a@x.com", "pw123"); !errors.Is(err, ErrEmailNotConfirmed) {
		t.Fatalf("expected ErrEmailNotConfirmed before confirmation, got %v", err)
	}

	if _, err := svc.ConfirmEmail(ctx, msg.token); err != nil {
		t.Fatalf("confirm email: %v", err)
	}

	pair, err := svc.Login(ctx, "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("login after confirmation: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "bearer" {
		t.Fatalf("unexpected token pair %+v", pair)
	}
}

func TestAuthService_LoginErrorVariants(t *testing.T) {
	svc, repo, sender := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Login(ctx, "ghost@x.com", "pw123"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail for unknown account, got %v", err)
	}

	if _, err := svc.Signup(ctx, "a@x.com", "alice", "pw123"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	sender.waitForEmail(t)
	if err := repo.ConfirmEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := svc.Login(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestAuthService_LoginPersistsRefreshToken(t *testing.T) {
	svc, repo, sender := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "alice", "pw123"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	sender.waitForEmail(t)
	if err := repo.ConfirmEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	pair, err := svc.Login(ctx, "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	stored, _ := repo.GetByEmail(ctx, "a@x.com")
	if stored.RefreshToken == nil || *stored.RefreshToken != pair.RefreshToken {
		t.Fatalf("expected stored refresh token to equal issued one")
	}
}

func TestAuthService_RefreshRotation(t *testing.T) {
	svc, repo, sender := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "alice", "pw123"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	sender.waitForEmail(t)
	if err := repo.ConfirmEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	pair, err := svc.Login(ctx, "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatalf("expected a fresh refresh token on rotation")
	}

	stored, _ := repo.GetByEmail(ctx, "a@x.com")
	if stored.RefreshToken == nil || *stored.RefreshToken != rotated.RefreshToken {
		t.Fatalf("expected rotated token persisted")
	}

	// El token viejo sigue firmado y sin expirar, pero ya no es el vigente:
	// el intento revoca la sesión entera.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for stale token, got %v", err)
	}
	stored, _ = repo.GetByEmail(ctx, "a@x.com")
	if stored.RefreshToken != nil {
		t.Fatalf("expected stored refresh token cleared after mismatch")
	}

	if _, err := svc.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected revoked session to reject even the newest token, got %v", err)
	}
}

func TestAuthService_RefreshRejectsNonRefreshTokens(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	access, err := svc.tokens.CreateAccessToken("a@x.com")
	if err != nil {
		t.Fatalf("create access token: %v", err)
	}
	if _, err := svc.Refresh(ctx, access); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for access token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, "garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for garbage, got %v", err)
	}
}

func TestAuthService_ConfirmEmailIdempotent(t *testing.T) {
	svc, repo, sender := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "alice", "pw123"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	msg := sender.waitForEmail(t)

	first, err := svc.ConfirmEmail(ctx, msg.token)
	if err != nil {
		t.Fatalf("confirm email: %v", err)
	}
	if first != "Email confirmed" {
		t.Fatalf("unexpected message %q", first)
	}

	second, err := svc.ConfirmEmail(ctx, msg.token)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if second != "Your email is already confirmed" {
		t.Fatalf("unexpected message %q", second)
	}

	stored, _ := repo.GetByEmail(ctx, "a@x.com")
	if !stored.Confirmed {
		t.Fatalf("expected confirmed flag set")
	}
}

func TestAuthService_ConfirmEmailErrors(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.ConfirmEmail(ctx, "garbage"); !errors.Is(err, ErrEmailToken) {
		t.Fatalf("expected ErrEmailToken, got %v", err)
	}

	token, err := svc.tokens.CreateEmailToken("ghost@x.com")
	if err != nil {
		t.Fatalf("create email token: %v", err)
	}
	if _, err := svc.ConfirmEmail(ctx, token); !errors.Is(err, ErrVerification) {
		t.Fatalf("expected ErrVerification for unknown user, got %v", err)
	}
}

func TestAuthService_RequestConfirmation(t *testing.T) {
	svc, repo, sender := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "a@x.com", "alice", "pw123"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	sender.waitForEmail(t)

	msg, err := svc.RequestConfirmation(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request confirmation: %v", err)
	}
	if msg != "Check your email for confirmation." {
		t.Fatalf("unexpected message %q", msg)
	}
	resent := sender.waitForEmail(t)
	if resent.to != "a@x.com" {
		t.Fatalf("expected resend to a@x.com, got %q", resent.to)
	}

	if err := repo.ConfirmEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	msg, err = svc.RequestConfirmation(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request confirmation: %v", err)
	}
	if msg != "Your email is already confirmed" {
		t.Fatalf("unexpected message %q", msg)
	}
	select {
	case extra := <-sender.sent:
		t.Fatalf("expected no email for confirmed account, got %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	// Email desconocido: mismo mensaje genérico, sin envío.
	msg, err = svc.RequestConfirmation(ctx, "ghost@x.com")
	if err != nil {
		t.Fatalf("request confirmation: %v", err)
	}
	if msg != "Check your email for confirmation." {
		t.Fatalf("unexpected message %q", msg)
	}
	select {
	case extra := <-sender.sent:
		t.Fatalf("expected no email for unknown account, got %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAuthService_SignupSurvivesSendFailure(t *testing.T) {
	repo := newMockUserRepo()
	sender := newMockSender()
	sender.err = errors.New("smtp down")
	tokens := newTestTokenService(t)
	svc := NewAuthService(zap.NewNop(), repo, tokens, NewBcryptHasher(4), sender, "http://localhost:8080")

	user, err := svc.Signup(context.Background(), "a@x.com", "alice", "pw123")
	if err != nil {
		t.Fatalf("expected signup to succeed despite send failure, got %v", err)
	}
	if user.Email != "a@x.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	sender.waitForEmail(t)
}

func TestAuthService_CurrentUser(t *testing.T) {
	svc, repo, sender := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, "a@x.com", "alice", "pw123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	sender.waitForEmail(t)
	if err := repo.ConfirmEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	pair, err := svc.Login(ctx, "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	resolved, err := svc.CurrentUser(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if resolved.ID != user.ID || resolved.Email != "a@x.com" {
		t.Fatalf("unexpected user %+v", resolved)
	}

	// Refresh token en endpoint de acceso y usuario inexistente responden
	// el mismo error, sin distinguir la causa.
	if _, err := svc.CurrentUser(ctx, pair.RefreshToken); err == nil {
		t.Fatalf("expected refresh token to be rejected as access credential")
	}
	ghostToken, err := svc.tokens.CreateAccessToken("ghost@x.com")
	if err != nil {
		t.Fatalf("create access token: %v", err)
	}
	if _, err := svc.CurrentUser(ctx, ghostToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for missing user, got %v", err)
	}
}
