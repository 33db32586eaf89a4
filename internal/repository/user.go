package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UserRepository gives onboarding collaborators and fixtures a way to register
// users and contact details. The ledger itself only reads them.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertProfile(ctx context.Context, profile *models.CustomerProfile) error
}

type userRepository struct {
	db db.DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(database db.DBTX) UserRepository {
	return &userRepository{db: database}
}

// Create inserts a user. Emails are stored lowercase.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = "customer"
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	query := `
		INSERT INTO users (id, email, role)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, user.ID, user.Email, user.Role).Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("user %s: %w", user.Email, models.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// FindByEmail retrieves a user by email, ignoring case
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, role, created_at FROM users WHERE LOWER(email) = LOWER($1)`

	var user models.User
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)).Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return &user, nil
}

// UpsertProfile creates or replaces the customer profile for a user
func (r *userRepository) UpsertProfile(ctx context.Context, profile *models.CustomerProfile) error {
	query := `
		INSERT INTO customer_profiles (user_id, phone)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET phone = EXCLUDED.phone, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, profile.UserID, profile.Phone); err != nil {
		return fmt.Errorf("failed to upsert customer profile: %w", err)
	}

	return nil
}
