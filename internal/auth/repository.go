package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string
	Email        string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository is the Postgres-backed Directory.
type Repository struct {
	db *sql.DB
}

var (
	_ Directory   = (*Repository)(nil)
	_ Provisioner = (*Repository)(nil)
)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, role, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`, normalizeEmail(email)).Scan(&user.ID, &user.Email, &user.Role, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

func (r *Repository) CheckCredentials(ctx context.Context, email, password string) (Identity, error) {
	user, err := r.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return Identity{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (r *Repository) LookupIdentity(ctx context.Context, subject string) (Identity, error) {
	var identity Identity
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, role
		FROM users
		WHERE id = $1
	`, subject).Scan(&identity.ID, &identity.Email, &identity.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrUnknownIdentity
		}
		return Identity{}, fmt.Errorf("query user by id: %w", err)
	}

	return identity, nil
}

func (r *Repository) UpsertUser(ctx context.Context, email, plainPassword, role string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (email)
		DO UPDATE SET
			role = EXCLUDED.role,
			password_hash = EXCLUDED.password_hash,
			updated_at = EXCLUDED.updated_at
	`, id.String(), normalizeEmail(email), role, string(hash), now)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}
