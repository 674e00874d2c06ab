package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scope etiqueta el uso permitido de un token.
type Scope string

const (
	ScopeAccess  Scope = "access_token"
	ScopeRefresh Scope = "refresh_token"
	// Los tokens de confirmación de email no llevan scope.
	ScopeNone Scope = ""
)

// TokenClaims es el payload firmado: sub, iat, exp y scope.
type TokenClaims struct {
	Scope Scope `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrTokenInvalid = errors.New("could not validate credentials")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenScope   = errors.New("invalid scope for token")
	ErrEmailToken   = errors.New("invalid token for email verification")
)

const emailTokenTTL = 7 * 24 * time.Hour

// TokenService emite y valida tokens JWT de acceso, refresh y confirmación.
// El algoritmo queda fijado en la construcción; el header del token nunca
// decide con qué método se verifica.
type TokenService struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(secret, algorithm string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", algorithm)
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// CreateAccessToken emite un token con scope access_token.
func (s *TokenService) CreateAccessToken(email string) (string, error) {
	return s.signToken(email, ScopeAccess, s.accessTTL)
}

// CreateRefreshToken emite un token con scope refresh_token.
func (s *TokenService) CreateRefreshToken(email string) (string, error) {
	return s.signToken(email, ScopeRefresh, s.refreshTTL)
}

// CreateEmailToken emite el token del link de confirmación, sin scope.
func (s *TokenService) CreateEmailToken(email string) (string, error) {
	return s.signToken(email, ScopeNone, emailTokenTTL)
}

// EmailFromAccessToken valida scope access_token y devuelve el subject.
func (s *TokenService) EmailFromAccessToken(tokenString string) (string, error) {
	return s.emailFromScopedToken(tokenString, ScopeAccess)
}

// EmailFromRefreshToken valida scope refresh_token y devuelve el subject.
func (s *TokenService) EmailFromRefreshToken(tokenString string) (string, error) {
	return s.emailFromScopedToken(tokenString, ScopeRefresh)
}

// EmailFromEmailToken decodifica el token de confirmación. Cualquier fallo
// se reporta como ErrEmailToken; confirmar email no es la misma frontera de
// seguridad que login.
func (s *TokenService) EmailFromEmailToken(tokenString string) (string, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return "", ErrEmailToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrEmailToken
	}
	return claims.Subject, nil
}

func (s *TokenService) emailFromScopedToken(tokenString string, want Scope) (string, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Scope != want {
		return "", ErrTokenScope
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

func (s *TokenService) signToken(email string, scope Scope, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := TokenClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(s.method, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) parseToken(tokenString string) (TokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return TokenClaims{}, ErrTokenInvalid
	}
	var claims TokenClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{s.method.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, ErrTokenInvalid
	}
	return claims, nil
}
