// Package postgres is the sqlx/lib-pq backed implementation of
// repository.Repository.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/icceey/pixivbot-sub000/internal/model"
)

// Store is the shared connection handle every per-concern repo embeds.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// New wraps an existing *sqlx.DB. timeout bounds every query issued
// through the returned repositories.
func New(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// GetChat fetches a chat row, or (nil, nil) if it does not exist.
func (s *Store) GetChat(ctx context.Context, chatID int64) (*model.Chat, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var chat model.Chat
	err := s.db.GetContext(ctx, &chat, `
		SELECT id, type, title, enabled, blur_sensitive_tags, excluded_tags,
		       sensitive_tags, allow_without_mention, created_at
		FROM chats WHERE id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get chat %d: %w", chatID, err)
	}
	return &chat, nil
}

// UpsertChat inserts chat, or does nothing if it already exists.
func (s *Store) UpsertChat(ctx context.Context, chat model.Chat) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, type, title, enabled, blur_sensitive_tags,
		                    excluded_tags, sensitive_tags, allow_without_mention)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		chat.ID, chat.Type, chat.Title, chat.Enabled, chat.BlurSensitiveTags,
		chat.ExcludedTags, chat.SensitiveTags, chat.AllowWithoutMention)
	if err != nil {
		return fmt.Errorf("repository: upsert chat %d: %w", chat.ID, err)
	}
	return nil
}

// UpdateChatSettings persists the mutable settings fields of chat (the
// admin-facing toggles), leaving identity columns untouched.
func (s *Store) UpdateChatSettings(ctx context.Context, chat model.Chat) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE chats SET enabled = $2, blur_sensitive_tags = $3,
		                 excluded_tags = $4, sensitive_tags = $5,
		                 allow_without_mention = $6
		WHERE id = $1`,
		chat.ID, chat.Enabled, chat.BlurSensitiveTags,
		chat.ExcludedTags, chat.SensitiveTags, chat.AllowWithoutMention)
	if err != nil {
		return fmt.Errorf("repository: update chat %d settings: %w", chat.ID, err)
	}
	return nil
}
