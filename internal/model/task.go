package model

import "time"

// TaskType is the kind of upstream a Task polls.
type TaskType string

const (
	TaskAuthor    TaskType = "author"
	TaskRanking   TaskType = "ranking"
	TaskEhGallery TaskType = "eh_gallery"
	TaskEhSearch  TaskType = "eh_search"
)

func (t TaskType) String() string { return string(t) }

// Task is a poll target shared across subscribers; identified by
// (Type, Value). Never carries cursor state — that lives on Subscription.
type Task struct {
	ID           int32      `db:"id" json:"id"`
	Type         TaskType   `db:"type" json:"type"`
	Value        string     `db:"value" json:"value"`
	NextPollAt   time.Time  `db:"next_poll_at" json:"next_poll_at"`
	LastPolledAt *time.Time `db:"last_polled_at" json:"last_polled_at,omitempty"`
	AuthorName   *string    `db:"author_name" json:"author_name,omitempty"`
}
