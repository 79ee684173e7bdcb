package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/icceey/pixivbot-sub000/internal/model"
)

// GetSubscription fetches a subscription row, or (nil, nil) if it does not
// exist.
func (s *Store) GetSubscription(ctx context.Context, id int32) (*model.Subscription, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var sub model.Subscription
	err := s.db.GetContext(ctx, &sub, `
		SELECT id, chat_id, task_id, filter_tags, latest_data, created_at
		FROM subscriptions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get subscription %d: %w", id, err)
	}
	return &sub, nil
}

// ListSubscriptionsByTask returns every subscription pointed at taskID.
func (s *Store) ListSubscriptionsByTask(ctx context.Context, taskID int32) ([]model.Subscription, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var subs []model.Subscription
	err := s.db.SelectContext(ctx, &subs, `
		SELECT id, chat_id, task_id, filter_tags, latest_data, created_at
		FROM subscriptions WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("repository: list subscriptions for task %d: %w", taskID, err)
	}
	return subs, nil
}

// ListSubscriptionsByChat returns every subscription a chat holds, used by
// the /list and /unsubscribe bot commands.
func (s *Store) ListSubscriptionsByChat(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var subs []model.Subscription
	err := s.db.SelectContext(ctx, &subs, `
		SELECT id, chat_id, task_id, filter_tags, latest_data, created_at
		FROM subscriptions WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("repository: list subscriptions for chat %d: %w", chatID, err)
	}
	return subs, nil
}

// CreateSubscription inserts sub and returns it with its assigned id and
// created_at.
func (s *Store) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := s.db.GetContext(ctx, &sub, `
		INSERT INTO subscriptions (chat_id, task_id, filter_tags)
		VALUES ($1, $2, $3)
		RETURNING id, chat_id, task_id, filter_tags, latest_data, created_at`,
		sub.ChatID, sub.TaskID, sub.FilterTags)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("repository: create subscription for chat %d: %w", sub.ChatID, err)
	}
	return sub, nil
}

// DeleteSubscription removes a subscription by id.
func (s *Store) DeleteSubscription(ctx context.Context, id int32) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("repository: delete subscription %d: %w", id, err)
	}
	return nil
}

// UpdateSubscriptionLatestData persists the engine-owned cursor/state for
// a subscription.
func (s *Store) UpdateSubscriptionLatestData(ctx context.Context, id int32, state model.SubscriptionState) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET latest_data = $2 WHERE id = $1`, id, &state); err != nil {
		return fmt.Errorf("repository: update subscription %d latest_data: %w", id, err)
	}
	return nil
}
