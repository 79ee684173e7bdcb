// Package repository defines the persistence surface the scheduler engines
// and bot commands need, independent of the backing store. The postgres
// subpackage is the only implementation; engines depend on these
// interfaces so their tests can substitute an in-memory fake.
package repository

import (
	"context"
	"time"

	"github.com/icceey/pixivbot-sub000/internal/model"
)

// Chats covers reads and writes on the `chats` table.
type Chats interface {
	GetChat(ctx context.Context, chatID int64) (*model.Chat, error)
	UpsertChat(ctx context.Context, chat model.Chat) error
	UpdateChatSettings(ctx context.Context, chat model.Chat) error
}

// Users covers reads and writes on the `users` table. GetUser is keyed by
// Telegram user id; for a private chat the chat id and the user id are the
// same value, which is how the admin-override check in
// GetChatIfShouldNotify can test admin status without a separate lookup
// path for private chats.
type Users interface {
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	UpsertUser(ctx context.Context, user model.User) error
}

// Tasks covers the shared poll targets in the `tasks` table.
type Tasks interface {
	GetTask(ctx context.Context, id int32) (*model.Task, error)
	GetOrCreateTask(ctx context.Context, taskType model.TaskType, value string) (model.Task, error)
	GetPendingTasksByType(ctx context.Context, taskType model.TaskType, limit int) ([]model.Task, error)
	GetAllTasksByType(ctx context.Context, taskType model.TaskType) ([]model.Task, error)
	UpdateTaskAfterPoll(ctx context.Context, taskID int32, nextPollAt time.Time) error
	UpdateTaskAuthorName(ctx context.Context, taskID int32, name *string) error
	// DeleteTask removes a task once its last subscription is gone. Callers
	// are expected to have already deleted the owning subscription(s); a
	// task with remaining subscriptions should never reach this call.
	DeleteTask(ctx context.Context, id int32) error
}

// Subscriptions covers the per-chat interest rows in the `subscriptions`
// table.
type Subscriptions interface {
	GetSubscription(ctx context.Context, id int32) (*model.Subscription, error)
	ListSubscriptionsByTask(ctx context.Context, taskID int32) ([]model.Subscription, error)
	ListSubscriptionsByChat(ctx context.Context, chatID int64) ([]model.Subscription, error)
	CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
	DeleteSubscription(ctx context.Context, id int32) error
	UpdateSubscriptionLatestData(ctx context.Context, id int32, state model.SubscriptionState) error
}

// Messages covers the `messages` table, which maps a delivered Telegram
// message back to the subscription (and illust) that produced it, so a
// reply can drive an unsubscribe.
type Messages interface {
	SaveMessage(ctx context.Context, chatID, messageID int64, subscriptionID int32, illustID *uint64) error
	GetMessage(ctx context.Context, chatID, messageID int64) (*model.Message, error)
}

// Repository is the full persistence surface composed from the
// per-concern interfaces above.
type Repository interface {
	Chats
	Users
	Tasks
	Subscriptions
	Messages
}
