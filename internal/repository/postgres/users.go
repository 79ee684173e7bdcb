package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/icceey/pixivbot-sub000/internal/model"
)

// GetUser fetches a user row, or (nil, nil) if it does not exist.
func (s *Store) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var user model.User
	err := s.db.GetContext(ctx, &user, `
		SELECT id, username, role, created_at FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get user %d: %w", userID, err)
	}
	return &user, nil
}

// UpsertUser inserts user, or refreshes its username on conflict.
func (s *Store) UpsertUser(ctx context.Context, user model.User) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`,
		user.ID, user.Username, user.Role)
	if err != nil {
		return fmt.Errorf("repository: upsert user %d: %w", user.ID, err)
	}
	return nil
}
