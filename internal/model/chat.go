package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ChatType mirrors the chat platform's conversation kinds.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// StringList is a JSON-backed ordered list of strings. It is never nil on
// read: the zero value marshals to `[]`, matching the invariant that
// excluded_tags/sensitive_tags are never null in storage.
type StringList []string

// Value implements driver.Valuer for sqlx/database-sql JSON columns.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		s = StringList{}
	}
	return json.Marshal([]string(s))
}

// Scan implements sql.Scanner for sqlx/database-sql JSON columns.
func (s *StringList) Scan(src interface{}) error {
	if src == nil {
		*s = StringList{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*s = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("model: unmarshal StringList: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*s = out
	return nil
}

// Chat mirrors the `chats` table.
type Chat struct {
	ID                  int64      `db:"id" json:"id"`
	Type                ChatType   `db:"type" json:"type"`
	Title               *string    `db:"title" json:"title,omitempty"`
	Enabled             bool       `db:"enabled" json:"enabled"`
	BlurSensitiveTags   bool       `db:"blur_sensitive_tags" json:"blur_sensitive_tags"`
	ExcludedTags        StringList `db:"excluded_tags" json:"excluded_tags"`
	SensitiveTags       StringList `db:"sensitive_tags" json:"sensitive_tags"`
	AllowWithoutMention bool       `db:"allow_without_mention" json:"allow_without_mention"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// NewChat builds a Chat with the canonical defaults described in spec §3.
func NewChat(id int64, typ ChatType, title *string) Chat {
	return Chat{
		ID:                id,
		Type:              typ,
		Title:             title,
		Enabled:           true,
		BlurSensitiveTags: true,
		ExcludedTags:      StringList{},
		SensitiveTags:     StringList{},
		CreatedAt:         time.Time{},
	}
}
