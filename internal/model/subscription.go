package model

import (
	"time"

	"github.com/icceey/pixivbot-sub000/internal/tagfilter"
)

// Subscription is a chat's interest in a task: a tag filter and a cursor.
// latest_data is the only field engines mutate.
type Subscription struct {
	ID         int32               `db:"id" json:"id"`
	ChatID     int64               `db:"chat_id" json:"chat_id"`
	TaskID     int32               `db:"task_id" json:"task_id"`
	FilterTags tagfilter.TagFilter `db:"filter_tags" json:"filter_tags"`
	LatestData SubscriptionState   `db:"latest_data" json:"latest_data"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
}

// Message mirrors the `messages` table.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ChatID         int64     `db:"chat_id" json:"chat_id"`
	MessageID      int64     `db:"message_id" json:"message_id"`
	SubscriptionID int32     `db:"subscription_id" json:"subscription_id"`
	IllustID       *uint64   `db:"illust_id" json:"illust_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
