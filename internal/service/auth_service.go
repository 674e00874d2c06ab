package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"contacts-api/internal/domain"
	"contacts-api/internal/email"
	"contacts-api/internal/repository"
)

var (
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrEmailNotConfirmed   = errors.New("email not confirmed")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrVerification        = errors.New("verification error")
)

// TokenPair es la respuesta de login y refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// AuthService coordina registro, login, confirmación de email y rotación de
// refresh tokens.
type AuthService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	tokens  *TokenService
	hasher  PasswordHasher
	sender  email.Sender
	baseURL string
}

func NewAuthService(logger *zap.Logger, users repository.UserRepository, tokens *TokenService, hasher PasswordHasher, sender email.Sender, baseURL string) *AuthService {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &AuthService{
		logger:  logger,
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		sender:  sender,
		baseURL: baseURL,
	}
}

// Signup registra un usuario sin confirmar y despacha el correo de
// confirmación en segundo plano. El chequeo previo por email es solo una
// cortesía: la constraint UNIQUE de la tabla es la fuente de verdad ante
// registros concurrentes.
func (s *AuthService) Signup(ctx context.Context, emailAddr, username, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}

	_, err := s.users.GetByEmail(ctx, emailAddr)
	if err == nil {
		return domain.User{}, ErrAccountExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		Email:        emailAddr,
		PasswordHash: hash,
		Confirmed:    false,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrAccountExists
		}
		return domain.User{}, err
	}

	s.dispatchConfirmation(user)
	return user, nil
}

// Login verifica credenciales y estado de confirmación, emite el par de
// tokens y persiste el refresh token emitido.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (TokenPair, error) {
	emailAddr = normalizeEmail(emailAddr)
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenPair{}, ErrInvalidEmail
		}
		return TokenPair{}, err
	}
	if !user.Confirmed {
		return TokenPair{}, ErrEmailNotConfirmed
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return TokenPair{}, ErrInvalidPassword
	}

	pair, err := s.issuePair(user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.users.UpdateRefreshToken(ctx, user.Email, &pair.RefreshToken); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh rota el par de tokens. La coincidencia con el token guardado se
// resuelve con un compare-and-set en la base: si el token presentado ya no
// es el vigente se revoca la sesión entera y el caller debe volver a login.
func (s *AuthService) Refresh(ctx context.Context, presented string) (TokenPair, error) {
	emailAddr, err := s.tokens.EmailFromRefreshToken(presented)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}

	pair, err := s.issuePair(user.Email)
	if err != nil {
		return TokenPair{}, err
	}

	rotated, err := s.users.RotateRefreshToken(ctx, user.Email, presented, pair.RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		// Token válido pero distinto al guardado: posible robo o una rotación
		// concurrente ya lo invalidó. Se fuerza re-login.
		if err := s.users.UpdateRefreshToken(ctx, user.Email, nil); err != nil {
			s.logger.Warn("clear refresh token failed", zap.Error(err), zap.String("email", user.Email))
		}
		return TokenPair{}, ErrInvalidRefreshToken
	}
	return pair, nil
}

// ConfirmEmail decodifica el token del link y marca el email como
// confirmado. Repetir la confirmación no muta nada.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (string, error) {
	emailAddr, err := s.tokens.EmailFromEmailToken(token)
	if err != nil {
		return "", err
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrVerification
		}
		return "", err
	}
	if user.Confirmed {
		return "Your email is already confirmed", nil
	}
	if err := s.users.ConfirmEmail(ctx, emailAddr); err != nil {
		return "", err
	}
	return "Email confirmed", nil
}

// RequestConfirmation reenvía el correo de confirmación con un token nuevo.
// Para emails desconocidos responde el mensaje genérico sin enviar nada.
func (s *AuthService) RequestConfirmation(ctx context.Context, emailAddr string) (string, error) {
	emailAddr = normalizeEmail(emailAddr)
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "Check your email for confirmation.", nil
		}
		return "", err
	}
	if user.Confirmed {
		return "Your email is already confirmed", nil
	}
	s.dispatchConfirmation(user)
	return "Check your email for confirmation.", nil
}

// CurrentUser resuelve el usuario dueño de un access token. Un token
// válido cuyo usuario no existe falla igual que un token inválido.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (domain.User, error) {
	emailAddr, err := s.tokens.EmailFromAccessToken(accessToken)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrTokenInvalid
		}
		return domain.User{}, err
	}
	return user, nil
}

// dispatchConfirmation envía el correo de confirmación fire-and-forget:
// un fallo de SMTP se loguea y nunca afecta la operación que lo disparó.
func (s *AuthService) dispatchConfirmation(user domain.User) {
	token, err := s.tokens.CreateEmailToken(user.Email)
	if err != nil {
		s.logger.Warn("create email token failed", zap.Error(err), zap.String("email", user.Email))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.sender.SendConfirmation(ctx, user.Email, user.Username, s.baseURL, token); err != nil {
			s.logger.Warn("send confirmation email failed", zap.Error(err), zap.String("email", user.Email))
		}
	}()
}

func (s *AuthService) issuePair(emailAddr string) (TokenPair, error) {
	access, err := s.tokens.CreateAccessToken(emailAddr)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.CreateRefreshToken(emailAddr)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
