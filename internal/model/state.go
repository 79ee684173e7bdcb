package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PendingIllust is an in-flight multi-page push whose partial progress is
// durable across ticks.
type PendingIllust struct {
	IllustID   uint64 `json:"illust_id"`
	SentPages  []int  `json:"sent_pages"`
	TotalPages int    `json:"total_pages"`
	RetryCount uint8  `json:"retry_count"`
}

// AuthorState is the `latest_data` payload for an author subscription.
type AuthorState struct {
	LatestIllustID uint64         `json:"latest_illust_id"`
	Pending        *PendingIllust `json:"pending,omitempty"`
}

// RankingState is the `latest_data` payload for a ranking subscription.
// PushedIDs is bounded to the last 100 entries (spec P3).
type RankingState struct {
	PushedIDs []uint64       `json:"pushed_ids"`
	Pending   *PendingIllust `json:"pending,omitempty"`
}

// EhGalleryState is the `latest_data` payload for an eh_gallery
// subscription. LastKnownGID/Token record the newest version of the
// tracked gallery this subscription has already been notified about,
// which may differ from the task's own (gid, token) once the gallery is
// republished under a new gid via the parent_gid chain.
type EhGalleryState struct {
	LastKnownGID   uint64 `json:"last_known_gid"`
	LastKnownToken string `json:"last_known_token"`
}

// EhSearchState is the `latest_data` payload for an eh_search
// subscription: the rolling set of already-pushed gallery ids, bounded
// the same way a ranking's pushed_ids is.
type EhSearchState struct {
	PushedIDs []uint64 `json:"pushed_ids"`
}

// TrimPushedIDs enforces the keep-last-100 bound.
func TrimPushedIDs(ids []uint64) []uint64 {
	if len(ids) <= 100 {
		return ids
	}
	return append([]uint64(nil), ids[len(ids)-100:]...)
}

// subscriptionStateKind discriminates the tagged union stored in the
// `latest_data` JSON column, serialized as {"type": "...", "state": {...}}.
type subscriptionStateKind string

const (
	stateKindAuthor    subscriptionStateKind = "author"
	stateKindRanking   subscriptionStateKind = "ranking"
	stateKindEhGallery subscriptionStateKind = "eh_gallery"
	stateKindEhSearch  subscriptionStateKind = "eh_search"
)

// SubscriptionState is the tagged-union wrapper persisted in the
// subscriptions.latest_data JSON column. Exactly one field is non-nil at
// a time, matching the subscription's task type.
type SubscriptionState struct {
	Author    *AuthorState
	Ranking   *RankingState
	EhGallery *EhGalleryState
	EhSearch  *EhSearchState
}

type subscriptionStateWire struct {
	Type  subscriptionStateKind `json:"type"`
	State json.RawMessage       `json:"state"`
}

// MarshalJSON implements the {"type","state"} tagged-union encoding.
func (s SubscriptionState) MarshalJSON() ([]byte, error) {
	switch {
	case s.Author != nil:
		state, err := json.Marshal(s.Author)
		if err != nil {
			return nil, err
		}
		return json.Marshal(subscriptionStateWire{Type: stateKindAuthor, State: state})
	case s.Ranking != nil:
		state, err := json.Marshal(s.Ranking)
		if err != nil {
			return nil, err
		}
		return json.Marshal(subscriptionStateWire{Type: stateKindRanking, State: state})
	case s.EhGallery != nil:
		state, err := json.Marshal(s.EhGallery)
		if err != nil {
			return nil, err
		}
		return json.Marshal(subscriptionStateWire{Type: stateKindEhGallery, State: state})
	case s.EhSearch != nil:
		state, err := json.Marshal(s.EhSearch)
		if err != nil {
			return nil, err
		}
		return json.Marshal(subscriptionStateWire{Type: stateKindEhSearch, State: state})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements the {"type","state"} tagged-union decoding.
func (s *SubscriptionState) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = SubscriptionState{}
		return nil
	}
	var wire subscriptionStateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("model: decode subscription state: %w", err)
	}
	switch wire.Type {
	case stateKindAuthor:
		var a AuthorState
		if err := json.Unmarshal(wire.State, &a); err != nil {
			return fmt.Errorf("model: decode author state: %w", err)
		}
		*s = SubscriptionState{Author: &a}
	case stateKindRanking:
		var r RankingState
		if err := json.Unmarshal(wire.State, &r); err != nil {
			return fmt.Errorf("model: decode ranking state: %w", err)
		}
		*s = SubscriptionState{Ranking: &r}
	case stateKindEhGallery:
		var g EhGalleryState
		if err := json.Unmarshal(wire.State, &g); err != nil {
			return fmt.Errorf("model: decode eh_gallery state: %w", err)
		}
		*s = SubscriptionState{EhGallery: &g}
	case stateKindEhSearch:
		var se EhSearchState
		if err := json.Unmarshal(wire.State, &se); err != nil {
			return fmt.Errorf("model: decode eh_search state: %w", err)
		}
		*s = SubscriptionState{EhSearch: &se}
	default:
		return fmt.Errorf("model: unknown subscription state type %q", wire.Type)
	}
	return nil
}

// Value implements driver.Valuer for the nullable JSON column.
func (s *SubscriptionState) Value() (driver.Value, error) {
	if s == nil || (s.Author == nil && s.Ranking == nil && s.EhGallery == nil && s.EhSearch == nil) {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for the nullable JSON column.
func (s *SubscriptionState) Scan(src interface{}) error {
	if src == nil {
		*s = SubscriptionState{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into SubscriptionState", src)
	}
	if len(raw) == 0 {
		*s = SubscriptionState{}
		return nil
	}
	return json.Unmarshal(raw, s)
}
