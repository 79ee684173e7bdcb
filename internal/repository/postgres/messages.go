package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/icceey/pixivbot-sub000/internal/model"
)

// SaveMessage records that messageID in chatID was produced by
// subscriptionID (and, if known, carried illustID), so a reply to it can
// drive an unsubscribe without the caller naming the subscription.
func (s *Store) SaveMessage(ctx context.Context, chatID, messageID int64, subscriptionID int32, illustID *uint64) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, message_id, subscription_id, illust_id)
		VALUES ($1, $2, $3, $4)`,
		chatID, messageID, subscriptionID, illustID)
	if err != nil {
		return fmt.Errorf("repository: save message %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// GetMessage looks up the subscription that produced a delivered message,
// or (nil, nil) if it isn't tracked (e.g. it predates this deploy).
func (s *Store) GetMessage(ctx context.Context, chatID, messageID int64) (*model.Message, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var msg model.Message
	err := s.db.GetContext(ctx, &msg, `
		SELECT id, chat_id, message_id, subscription_id, illust_id, created_at
		FROM messages WHERE chat_id = $1 AND message_id = $2`, chatID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get message %d/%d: %w", chatID, messageID, err)
	}
	return &msg, nil
}
