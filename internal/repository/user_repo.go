package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"contacts-api/internal/domain"
)

// ErrDuplicateEmail indica que el email ya existe en la tabla users.
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateRefreshToken(ctx context.Context, email string, token *string) error
	// RotateRefreshToken reemplaza el refresh token solo si el valor guardado
	// coincide con old. Devuelve false cuando no hubo coincidencia.
	RotateRefreshToken(ctx context.Context, email, old, next string) (bool, error)
	ConfirmEmail(ctx context.Context, email string) error
	UpdateAvatar(ctx context.Context, email, avatarURL string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, username, email, password, confirmed, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Confirmed,
		user.Avatar,
		user.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT id, username, email, password, confirmed, avatar, refresh_token, created_at
		FROM users
		WHERE email = $1
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Confirmed,
		&u.Avatar,
		&u.RefreshToken,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}
	return u, err
}

func (r *PgUserRepository) UpdateRefreshToken(ctx context.Context, email string, token *string) error {
	const query = `
		UPDATE users SET refresh_token = $2 WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) RotateRefreshToken(ctx context.Context, email, old, next string) (bool, error) {
	// Compare-and-set en una sola sentencia: dos refresh concurrentes con el
	// mismo token solo pueden ganar una vez.
	const query = `
		UPDATE users SET refresh_token = $3 WHERE email = $1 AND refresh_token = $2
	`
	tag, err := r.pool.Exec(ctx, query, email, old, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgUserRepository) ConfirmEmail(ctx context.Context, email string) error {
	const query = `
		UPDATE users SET confirmed = TRUE WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) UpdateAvatar(ctx context.Context, email, avatarURL string) error {
	const query = `
		UPDATE users SET avatar = $2 WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email, avatarURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
