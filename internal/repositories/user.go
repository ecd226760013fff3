package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/jmoiron/sqlx"
)

const userColumns = "id, display_name, access_token, refresh_token, token_type, token_expiry, synced_at, created_at, updated_at"

// UserRepository persists the authenticated account and its token.
type UserRepository struct {
	q sqlx.Ext
}

// Save inserts the user or refreshes its display name and token.
func (r *UserRepository) Save(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :display_name, :access_token, :refresh_token, :token_type, :token_expiry, :synced_at, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN users.refresh_token ELSE excluded.refresh_token END,
			token_type = excluded.token_type,
			token_expiry = excluded.token_expiry,
			updated_at = excluded.updated_at
	`
	if _, err := sqlx.NamedExec(r.q, query, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(id string) (*models.User, error) {
	var user models.User
	err := sqlx.Get(r.q, &user, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Current returns the most recently authenticated user.
func (r *UserRepository) Current() (*models.User, error) {
	var user models.User
	err := sqlx.Get(r.q, &user, "SELECT "+userColumns+" FROM users ORDER BY updated_at DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no user has authenticated", shared.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// MarkSynced records a completed library refresh.
func (r *UserRepository) MarkSynced(id string, at time.Time) error {
	res, err := r.q.Exec("UPDATE users SET synced_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark user synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}
	return nil
}
